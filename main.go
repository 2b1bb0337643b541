package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/go-echarts/statsview"
	"github.com/go-echarts/statsview/viewer"
	"github.com/gorilla/handlers"
	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff"
	"github.com/pkg/profile"
	log "github.com/sirupsen/logrus"

	"github.com/a-bouts/regatta-server/api"
	"github.com/a-bouts/regatta-server/collision"
	"github.com/a-bouts/regatta-server/polar"
	"github.com/a-bouts/regatta-server/race"
	"github.com/a-bouts/regatta-server/server"
	"github.com/a-bouts/regatta-server/updater"
	"github.com/a-bouts/regatta-server/wind"
	"github.com/a-bouts/regatta-server/xmpp"
)

func loadDefinition(path string) (*race.Definition, error) {
	if path == "" {
		return race.DefaultDefinition(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return race.LoadDefinition(f)
}

func loadPolars(path string) (*polar.Polars, error) {
	if path == "" {
		return polar.Default(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return polar.Load(f)
}

// loadWind reads a GRIB forecast and returns the wind at the course center.
func loadWind(path string, def *race.Definition) (direction, speed float64, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()
	field, err := wind.Load(f)
	if err != nil {
		return 0, 0, err
	}
	c, err := def.Course()
	if err != nil {
		return 0, 0, err
	}
	v := c.View()
	direction, speed = field.At((v.MinLat+v.MaxLat)/2, (v.MinLon+v.MaxLon)/2)
	return direction, speed, nil
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		os.Exit(1)
	}
}

// run serves races until interrupted. Errors are logged before being
// returned.
func run(args []string) error {

	if err := godotenv.Load(); err == nil {
		log.Info("Loaded .env")
	}

	fs := flag.NewFlagSet("regatta-server", flag.ContinueOnError)
	var (
		port              = fs.Int("port", 4941, "listening port for raw, WebSocket and HTTP clients")
		definitionFile    = fs.String("definition", "", "race definition yaml, the Great Sound course when empty")
		polarsFile        = fs.String("polars", "", "boat polars csv, the AC35 polars when empty")
		windGrib          = fs.String("wind-grib", "", "GRIB forecast giving the course wind")
		timeScale         = fs.Float64("time-scale", 1, "simulated seconds per real second")
		speedScale        = fs.Float64("speed-scale", 1, "boat speed multiplier")
		minParticipants   = fs.Int("min-participants", 1, "players needed before the race goes live")
		maxCompetitors    = fs.Int("max-competitors", 6, "")
		maxSpectators     = fs.Int("max-spectators", 100, "")
		numRaces          = fs.Int("num-races", 1, "")
		alwaysRerun       = fs.Bool("always-rerun", false, "run races forever")
		aiDifficulty      = fs.String("ai-difficulty", "none", "none, easy, medium or hard")
		tutorial          = fs.Bool("tutorial", false, "")
		collisionDistance = fs.Float64("collision-distance", collision.DefaultConfig().BoatDistance, "boat contact distance in nautical miles")
		collisionCooldown = fs.Duration("collision-cooldown", collision.DefaultConfig().Cooldown, "")
		logLevel          = fs.String("log-level", "info", "")
		sentryDsn         = fs.String("sentry-dsn", "", "")
		cpuprofile        = fs.Bool("cpuprofile", false, "")
		statsviewAddr     = fs.String("statsview", "", "address of the runtime stats viewer")
		xmppHost          = fs.String("xmpp-host", "", "")
		xmppJid           = fs.String("xmpp-jid", "", "")
		xmppPassword      = fs.String("xmpp-password", "", "")
		xmppTo            = fs.String("xmpp-to", "", "")
		_                 = fs.String("config", "", "config file")
	)
	err := ff.Parse(fs, args,
		ff.WithEnvVarNoPrefix(),
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ff.PlainParser),
	)
	if errors.Is(err, flag.ErrHelp) {
		return nil
	}
	if err != nil {
		log.WithError(err).Error("Invalid configuration")
		return err
	}

	level, err := log.ParseLevel(*logLevel)
	if err != nil {
		log.WithError(err).Warn("Unknown log level, using info")
		level = log.InfoLevel
	}
	log.SetLevel(level)
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	x := xmpp.Xmpp{Config: xmpp.Config{Host: *xmppHost, Jid: *xmppJid, Password: *xmppPassword, To: *xmppTo}}
	var notifier server.Notifier
	if x.Enabled() {
		notifier = x
	}
	fail := func(err error, msg string) error {
		log.WithError(err).Error(msg)
		if notifier != nil {
			if nerr := notifier.Send(fmt.Sprintf("%s: %v", msg, err)); nerr != nil {
				log.WithError(nerr).Warn("Notification failed")
			}
		}
		return fmt.Errorf("%s: %w", msg, err)
	}

	if *sentryDsn != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: *sentryDsn}); err != nil {
			log.WithError(err).Warn("Sentry disabled")
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	if *cpuprofile {
		defer profile.Start().Stop()
	}

	if *statsviewAddr != "" {
		viewer.SetConfiguration(viewer.WithTheme(viewer.ThemeWesteros), viewer.WithAddr(*statsviewAddr))
		mgr := statsview.New()
		go mgr.Start()
		defer mgr.Stop()
	}

	difficulty, err := updater.ParseDifficulty(*aiDifficulty)
	if err != nil {
		return fail(err, "Invalid configuration")
	}

	polars, err := loadPolars(*polarsFile)
	if err != nil {
		return fail(err, "Could not load polars")
	}

	def, err := loadDefinition(*definitionFile)
	if err != nil {
		return fail(err, "Could not load race definition")
	}
	if *windGrib != "" {
		direction, speed, err := loadWind(*windGrib, def)
		if err != nil {
			return fail(err, "Could not load wind")
		}
		log.WithFields(log.Fields{"direction": direction, "speed": speed}).Info("Wind from forecast")
		def.Wind.Direction = &direction
		def.Wind.Speed = speed
	}
	if _, err := def.Course(); err != nil {
		return fail(err, "Invalid race definition")
	}

	options := updater.DefaultOptions()
	options.TimeScale = *timeScale
	options.SpeedScale = *speedScale
	options.MinParticipants = *minParticipants
	options.MaxCompetitors = *maxCompetitors
	options.Tutorial = *tutorial
	options.AI = difficulty
	options.Collision.BoatDistance = *collisionDistance
	options.Collision.Cooldown = *collisionCooldown

	newRace := func() (*updater.Updater, error) {
		c, err := def.Course()
		if err != nil {
			return nil, err
		}
		starters, err := def.Starters()
		if err != nil {
			return nil, err
		}
		o := options
		o.Seed = time.Now().UnixNano()
		return updater.New(race.New(def.Name, c, time.Now()), starters, polars, o), nil
	}

	srvOptions := server.DefaultOptions()
	srvOptions.MaxSpectators = *maxSpectators
	srvOptions.TimeScale = *timeScale
	srvOptions.NumRaces = *numRaces
	srvOptions.AlwaysRerun = *alwaysRerun
	srv := server.New(srvOptions, newRace, notifier)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", *port))
	if err != nil {
		return fail(err, "Could not listen")
	}

	router := api.InitServer(srv)
	handler := handlers.RecoveryHandler(handlers.PrintRecoveryStack(true))(
		handlers.CORS(handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost}))(
			handlers.CombinedLoggingHandler(log.StandardLogger().Writer(), router)))

	go func() {
		if err := srv.Serve(ctx, ln, handler); err != nil {
			log.WithError(err).Error("Server stopped")
			stop()
		}
	}()

	log.WithField("port", *port).Info("Start server")
	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fail(err, "Race loop failed")
	}
	log.Info("Bye")
	return nil
}
