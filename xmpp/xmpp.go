package xmpp

import (
	"crypto/tls"
	"errors"
	"strings"

	"github.com/mattn/go-xmpp"
	log "github.com/sirupsen/logrus"
)

var ErrMissingConfig = errors.New("missing xmpp config")

type (
	// Config of the race officer chat account.
	Config struct {
		Host     string
		Jid      string
		Password string
		To       string
	}

	Xmpp struct {
		Config Config
	}
)

func serverName(jid string) string {
	if i := strings.LastIndex(jid, "@"); i >= 0 {
		return jid[i+1:]
	}
	return jid
}

// Enabled reports whether notifications can be sent at all.
func (x Xmpp) Enabled() bool {
	return len(x.Config.Jid) > 0 && len(x.Config.Password) > 0 && len(x.Config.To) > 0
}

func (x Xmpp) Send(message string) error {

	if !x.Enabled() {
		log.Debug("missing xmpp config")

		return ErrMissingConfig
	}

	if len(x.Config.Host) == 0 {
		x.Config.Host = serverName(x.Config.Jid)
	}

	xmpp.DefaultConfig = tls.Config{
		InsecureSkipVerify: true,
	}

	options := xmpp.Options{
		Host:          x.Config.Host,
		User:          x.Config.Jid,
		Password:      x.Config.Password,
		NoTLS:         true,
		StartTLS:      true,
		Debug:         false,
		Session:       false,
		Status:        "xa",
		StatusMessage: "Race officer",
	}

	logger := log.WithFields(log.Fields{"host": options.Host, "to": x.Config.To})
	logger.Debug("create client")
	talk, err := options.NewClient()

	if err != nil {
		logger.WithError(err).Warn("xmpp connection failed")

		return err
	}
	defer talk.Close()

	logger.Debug("send message")
	_, err = talk.Send(xmpp.Chat{Remote: x.Config.To, Type: "chat", Text: message})
	return err
}
