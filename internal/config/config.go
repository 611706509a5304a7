package config

import (
	"time"

	"github.com/adampresley/configinator"
)

// defaultSecret is the placeholder value of every secret setting.
const defaultSecret = "password"

type Config struct {
	Host           string `flag:"host" env:"HOST" default:":8080" description:"The address and port to bind the HTTP server to"`
	BaseURL        string `flag:"baseurl" env:"BASE_URL" default:"http://localhost:8080" description:"Public URL of this server, used in password reset links"`
	DBPath         string `flag:"dbpath" env:"DB_PATH" default:"/data/fotovendas.db" description:"Path of the SQLite database file"`
	DataBackend    string `flag:"databackend" env:"DATA_BACKEND" default:"sqlite" description:"Relational store backend. Valid values are 'sqlite' and 'platform'"`
	AuthBackend    string `flag:"authbackend" env:"AUTH_BACKEND" default:"local" description:"Identity provider. Valid values are 'local' and 'platform'"`
	PhotoBackend   string `flag:"photobackend" env:"PHOTO_BACKEND" default:"local" description:"Object storage backend. Valid values are 'local', 's3' and 'platform'"`
	PhotoPath      string `flag:"photopath" env:"PHOTO_LOCAL_PATH" default:"/data/photos" description:"Directory for the local photo backend"`
	PhotoBucket    string `flag:"photobucket" env:"PHOTO_BUCKET" default:"sale_photos" description:"Bucket holding sale photos"`
	PlatformURL    string `flag:"platformurl" env:"PLATFORM_URL" default:"" description:"Base URL of the hosted data platform"`
	PlatformKey    string `flag:"platformkey" env:"PLATFORM_ANON_KEY" default:"" description:"Public API key of the hosted data platform"`
	AwsEndpointURL string `flag:"awsep" env:"AWS_ENDPOINT_URL" default:"" description:"AWS endpoint URL"`
	AwsRegion      string `flag:"awsregion" env:"AWS_REGION" default:"us-east-1" description:"AWS region"`
	AwsAccessKeyID string `flag:"awsaccesskeyid" env:"AWS_ACCESS_KEY_ID" default:"" description:"AWS access key ID"`
	AwsSecretKey   string `flag:"awssecretaccesskey" env:"AWS_SECRET_ACCESS_KEY" default:"" description:"AWS secret access key"`
	CookieSecret   string `flag:"cookiesecret" env:"COOKIE_SECRET" default:"password" description:"Secret for signing cookies"`
	SigningSecret  string `flag:"signingsecret" env:"SIGNING_SECRET" default:"password" description:"Secret for signing local storage URLs"`
	CookieSecure   bool   `flag:"cookiesecure" env:"COOKIE_SECURE" default:"false" description:"Only send cookies over HTTPS. Enable when served behind TLS"`
	SendGridAPIKey string `flag:"sendgridapikey" env:"SENDGRID_API_KEY" default:"" description:"SendGrid API key. Mail is logged when empty"`
	MailFrom       string `flag:"mailfrom" env:"MAIL_FROM" default:"no-reply@fotovendas.local" description:"Sender address for outgoing mail"`
	SignedURLTTL   int    `flag:"signedurlttl" env:"SIGNED_URL_TTL" default:"3600" description:"Lifetime of signed photo URLs in seconds"`
	BootstrapWait  int    `flag:"bootstrapwait" env:"BOOTSTRAP_WAIT" default:"2000" description:"Milliseconds a request waits for a new session to resolve before showing the loading page"`
	MaxUploadMB    int    `flag:"maxuploadmb" env:"MAX_UPLOAD_MB" default:"50" description:"Maximum size of a single uploaded image in megabytes"`
	SignWorkers    int    `flag:"signworkers" env:"SIGN_WORKERS" default:"8" description:"Maximum number of concurrent signed URL requests"`
	LogLevel       string `flag:"loglevel" env:"LOG_LEVEL" default:"info" description:"The log level to use. Valid values are 'debug', 'info', 'warn', and 'error'"`
	LogFormat      string `flag:"logformat" env:"LOG_FORMAT" default:"json" description:"Log encoding. Valid values are 'json' and 'text'"`
	LogFile        string `flag:"logfile" env:"LOG_FILE" default:"" description:"Optional file that receives a copy of the logs"`
}

func Load() *Config {
	cfg := &Config{}
	configinator.Behold(cfg)
	return cfg
}

func (c *Config) SignedURLExpiry() time.Duration {
	return time.Duration(c.SignedURLTTL) * time.Second
}

func (c *Config) BootstrapTimeout() time.Duration {
	return time.Duration(c.BootstrapWait) * time.Millisecond
}

// PlatformConfigured reports whether both platform connection parameters are set.
func (c *Config) PlatformConfigured() bool {
	return c.PlatformURL != "" && c.PlatformKey != ""
}

// DefaultSecrets lists the secret settings still holding the built-in
// placeholder value.
func (c *Config) DefaultSecrets() []string {
	var names []string
	if c.CookieSecret == defaultSecret {
		names = append(names, "COOKIE_SECRET")
	}
	if c.SigningSecret == defaultSecret {
		names = append(names, "SIGNING_SECRET")
	}
	return names
}
