package api

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/a-bouts/regatta-server/api/model"
	"github.com/a-bouts/regatta-server/race"
	"github.com/gorilla/mux"
)

const msgpackType = "application/msgpack"

// Service is the race server seen from the admin API.
type Service interface {
	Snapshot() (race.Snapshot, bool)
	StopRace() bool
}

type server struct {
	svc Service
}

func InitServer(svc Service) *mux.Router {

	router := mux.NewRouter().StrictSlash(true)

	s := server{svc: svc}

	api := router.PathPrefix("/").Subrouter()
	api.HandleFunc("/race/-/healthz", s.healthz).Methods(http.MethodGet)

	apiV1 := router.PathPrefix("/race/api/v1").Subrouter()
	apiV1.HandleFunc("/race", s.race).Methods(http.MethodGet)
	apiV1.HandleFunc("/stop", s.stop).Methods(http.MethodPost)

	return router
}

func (s *server) healthz(w http.ResponseWriter, r *http.Request) {
	encode(w, r, http.StatusOK, model.Health{Status: "Ok"})
}

func (s *server) race(w http.ResponseWriter, req *http.Request) {
	snap, ok := s.svc.Snapshot()
	if !ok {
		encode(w, req, http.StatusNotFound, model.Error{Error: "no race in progress"})
		return
	}
	encode(w, req, http.StatusOK, snap)
}

func (s *server) stop(w http.ResponseWriter, req *http.Request) {
	fields := log.Fields{
		"action": "stop",
	}
	if ip, err := getIp(req); err == nil {
		fields["IP"] = ip
	}
	requestLogger := log.WithFields(fields)

	snap, ok := s.svc.Snapshot()
	if !ok || !s.svc.StopRace() {
		requestLogger.Warn("Stop requested with no race in progress")
		encode(w, req, http.StatusNotFound, model.Error{Error: "no race in progress"})
		return
	}

	requestLogger.Infof("Stop race %d '%s'", snap.ID, snap.Name)
	encode(w, req, http.StatusAccepted, model.Stop{RaceID: snap.ID, Status: "stopping"})
}

// encode answers in msgpack when the client asks for it, JSON otherwise.
func encode(w http.ResponseWriter, req *http.Request, status int, v any) {
	if strings.Contains(req.Header.Get("Accept"), msgpackType) {
		b, err := msgpack.Marshal(v)
		if err != nil {
			log.WithError(err).Error("msgpack encode failed")
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", msgpackType)
		w.WriteHeader(status)
		w.Write(b)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func getIp(r *http.Request) (string, error) {
	//Get IP from the X-REAL-IP header
	ip := r.Header.Get("X-REAL-IP")
	netIP := net.ParseIP(ip)
	if netIP != nil {
		return ip, nil
	}

	//Get IP from X-FORWARDED-FOR header
	ips := r.Header.Get("X-FORWARDED-FOR")
	splitIps := strings.Split(ips, ",")
	for _, ip := range splitIps {
		ip = strings.TrimSpace(ip)
		netIP := net.ParseIP(ip)
		if netIP != nil {
			return ip, nil
		}
	}

	//Get IP from RemoteAddr
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return "", err
	}
	netIP = net.ParseIP(ip)
	if netIP != nil {
		return ip, nil
	}
	return "", fmt.Errorf("No valid ip found")
}
