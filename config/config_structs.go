package config

type BaseConfig struct {
	Name        string      `koanf:"name" json:"name"`
	Debug       bool        `koanf:"debug" json:"debug"`
	Server      Server      `koanf:"server" json:"server"`
	Persistence Persistence `koanf:"persistence" json:"persistence"`
	Password    Password    `koanf:"password" json:"password"`
	Lockout     Lockout     `koanf:"lockout" json:"lockout"`
	Tokens      Tokens      `koanf:"tokens" json:"tokens"`
	Session     Session     `koanf:"session" json:"session"`
	Email       Email       `koanf:"email" json:"email"`
	Redis       Redis       `koanf:"redis" json:"redis"`
	Admin       Admin       `koanf:"admin" json:"admin"`
}

type Server struct {
	Addr                      string `koanf:"addr" json:"addr"`
	BaseURL                   string `koanf:"base_url" json:"base_url"`
	SecureCookies             bool   `koanf:"secure_cookies" json:"secure_cookies"`
	RequestVerification       bool   `koanf:"request_verification" json:"request_verification"`
	LoginRateLimit            int    `koanf:"login_rate_limit" json:"login_rate_limit"`
	LoginRateWindowExpression string `koanf:"login_rate_window" json:"login_rate_window"`
}

type Persistence struct {
	Driver                string `koanf:"driver" json:"driver"`
	DSN                   string `koanf:"dsn" json:"dsn"`
	Debug                 bool   `koanf:"debug" json:"debug"`
	Server                string `koanf:"server" json:"server"`
	OtelIdentifier        string `koanf:"otel_identifier" json:"otel_identifier"`
	PingTimeoutExpression string `koanf:"ping_timeout" json:"ping_timeout"`
}

type Password struct {
	MinLength              int  `koanf:"min_length" json:"min_length"`
	RequireDigit           bool `koanf:"require_digit" json:"require_digit"`
	RequireLowercase       bool `koanf:"require_lowercase" json:"require_lowercase"`
	RequireUppercase       bool `koanf:"require_uppercase" json:"require_uppercase"`
	RequireNonAlphanumeric bool `koanf:"require_non_alphanumeric" json:"require_non_alphanumeric"`
	BcryptCost             int  `koanf:"bcrypt_cost" json:"bcrypt_cost"`
}

type Lockout struct {
	MaxFailedAttempts  int    `koanf:"max_failed_attempts" json:"max_failed_attempts"`
	DurationExpression string `koanf:"duration" json:"duration"`
}

type Tokens struct {
	SigningKey                string `koanf:"signing_key" json:"signing_key"`
	Issuer                    string `koanf:"issuer" json:"issuer"`
	ConfirmationTTLExpression string `koanf:"confirmation_ttl" json:"confirmation_ttl"`
	ResetTTLExpression        string `koanf:"reset_ttl" json:"reset_ttl"`
}

type Session struct {
	CookieName           string `koanf:"cookie_name" json:"cookie_name"`
	ExpirationExpression string `koanf:"expiration" json:"expiration"`
	SlidingExpiration    bool   `koanf:"sliding_expiration" json:"sliding_expiration"`
	Store                string `koanf:"store" json:"store"`
}

type Email struct {
	Transport         string  `koanf:"transport" json:"transport"`
	From              string  `koanf:"from" json:"from"`
	FromName          string  `koanf:"from_name" json:"from_name"`
	TimeoutExpression string  `koanf:"timeout" json:"timeout"`
	SMTP              SMTP    `koanf:"smtp" json:"smtp"`
	Mailgun           Mailgun `koanf:"mailgun" json:"mailgun"`
	AMQP              AMQP    `koanf:"amqp" json:"amqp"`
}

type SMTP struct {
	Host      string `koanf:"host" json:"host"`
	Port      int    `koanf:"port" json:"port"`
	EnableSSL bool   `koanf:"enable_ssl" json:"enable_ssl"`
	Username  string `koanf:"username" json:"username"`
	Password  string `koanf:"password" json:"-"`
}

type Mailgun struct {
	Domain  string `koanf:"domain" json:"domain"`
	APIKey  string `koanf:"api_key" json:"-"`
	APIBase string `koanf:"api_base" json:"api_base"`
}

type AMQP struct {
	URL   string `koanf:"url" json:"-"`
	Queue string `koanf:"queue" json:"queue"`
}

type Redis struct {
	Addr      string `koanf:"addr" json:"addr"`
	Password  string `koanf:"password" json:"-"`
	DB        int    `koanf:"db" json:"db"`
	KeyPrefix string `koanf:"key_prefix" json:"key_prefix"`
}

type Admin struct {
	Enabled   bool   `koanf:"enabled" json:"enabled"`
	Username  string `koanf:"username" json:"username"`
	Email     string `koanf:"email" json:"email"`
	Password  string `koanf:"password" json:"-"`
	FullName  string `koanf:"full_name" json:"full_name"`
	Phone     string `koanf:"phone" json:"phone"`
	UseHashid bool   `koanf:"use_hashid" json:"use_hashid"`
}
