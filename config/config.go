package config

import (
	"errors"
	"flag"
	"io/fs"
	"net"
	"os"
	"regexp"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Addr          string
	DBUrl         string
	TokenSecret   string
	TokenTTL      time.Duration
	Debug         bool
	Seed          bool
	AdminUser     string
	AdminPassword string
	// SubmitRate caps form submissions per client IP, per minute. Zero disables it.
	SubmitRate uint
}

// ParseFlags loads an optional .env file, then parses the command line.
// Environment variables (QSURVEY_*) provide the defaults for each flag.
func ParseFlags() (cfg Config, err error) {
	err = godotenv.Load()
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return
	}
	return Parse(os.Args[1:], os.Getenv)
}

func Parse(args []string, getenv func(string) string) (cfg Config, err error) {
	env := func(key, fallback string) string {
		if v := getenv("QSURVEY_" + key); v != "" {
			return v
		}
		return fallback
	}

	flags := flag.NewFlagSet("quick-survey", flag.ContinueOnError)

	var host string
	flags.StringVar(&host, "host", env("HOST", "0.0.0.0"), "listen host name")
	var port uint
	flags.UintVar(&port, "port", envUint(env("PORT", ""), 80), "listen port number")
	flags.StringVar(&cfg.DBUrl, "db-url", env("DB_URL", "qsurvey.sqlite"), "path to SQLite3 DB file")
	flags.StringVar(&cfg.TokenSecret, "token-secret", env("TOKEN_SECRET", ""), "secret key for token encryption and decryption")
	var ttl uint
	flags.UintVar(&ttl, "token-ttl", envUint(env("TOKEN_TTL", ""), 120), "token TTL in seconds")
	flags.BoolVar(&cfg.Debug, "debug", env("DEBUG", "") == "true", "log at DEBUG level")
	flags.BoolVar(&cfg.Seed, "seed", env("SEED", "true") == "true", "apply the embedded question catalog on startup")
	flags.StringVar(&cfg.AdminUser, "admin-user", env("ADMIN_USER", ""), "create or update this admin account on startup")
	flags.StringVar(&cfg.AdminPassword, "admin-password", env("ADMIN_PASSWORD", ""), "password for -admin-user")
	flags.UintVar(&cfg.SubmitRate, "submit-rate", envUint(env("SUBMIT_RATE", ""), 30), "max survey submissions per minute from one IP, 0 for no limit")

	err = flags.Parse(args)
	if err != nil {
		return
	}

	cfg.Addr = net.JoinHostPort(host, strconv.Itoa(int(port)))
	cfg.TokenTTL = time.Duration(ttl) * time.Second

	switch {
	case cfg.TokenSecret == "":
		err = errors.New("missing parameter -token-secret")
	case cfg.AdminUser != "" && cfg.AdminPassword == "":
		err = errors.New("missing parameter -admin-password for -admin-user")
	}

	return
}

func envUint(v string, fallback uint) uint {
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		return fallback
	}
	return uint(n)
}

func (cfg Config) Url() (url string) {
	url = cfg.Addr
	url = regexp.MustCompile(`^0.0.0.0`).ReplaceAllString(url, "localhost")
	url = "http://" + url
	return
}
