package config

func (b BaseConfig) GetName() string             { return b.Name }
func (b BaseConfig) GetDebug() bool              { return b.Debug }
func (b BaseConfig) GetServer() Server           { return b.Server }
func (b BaseConfig) GetPersistence() Persistence { return b.Persistence }
func (b BaseConfig) GetPassword() Password       { return b.Password }
func (b BaseConfig) GetLockout() Lockout         { return b.Lockout }
func (b BaseConfig) GetTokens() Tokens           { return b.Tokens }
func (b BaseConfig) GetSession() Session         { return b.Session }
func (b BaseConfig) GetEmail() Email             { return b.Email }
func (b BaseConfig) GetRedis() Redis             { return b.Redis }
func (b BaseConfig) GetAdmin() Admin             { return b.Admin }

func (s Server) GetAddr() string              { return s.Addr }
func (s Server) GetBaseURL() string           { return s.BaseURL }
func (s Server) GetSecureCookies() bool       { return s.SecureCookies }
func (s Server) GetRequestVerification() bool { return s.RequestVerification }
func (s Server) GetLoginRateLimit() int       { return s.LoginRateLimit }

func (p Persistence) GetDriver() string         { return p.Driver }
func (p Persistence) GetDSN() string            { return p.DSN }
func (p Persistence) GetDebug() bool            { return p.Debug }
func (p Persistence) GetServer() string         { return p.Server }
func (p Persistence) GetOtelIdentifier() string { return p.OtelIdentifier }

func (p Password) GetMinLength() int               { return p.MinLength }
func (p Password) GetRequireDigit() bool           { return p.RequireDigit }
func (p Password) GetRequireLowercase() bool       { return p.RequireLowercase }
func (p Password) GetRequireUppercase() bool       { return p.RequireUppercase }
func (p Password) GetRequireNonAlphanumeric() bool { return p.RequireNonAlphanumeric }
func (p Password) GetBcryptCost() int              { return p.BcryptCost }

func (l Lockout) GetMaxFailedAttempts() int { return l.MaxFailedAttempts }

func (t Tokens) GetSigningKey() string { return t.SigningKey }
func (t Tokens) GetIssuer() string     { return t.Issuer }

func (s Session) GetCookieName() string      { return s.CookieName }
func (s Session) GetSlidingExpiration() bool { return s.SlidingExpiration }
func (s Session) GetStore() string           { return s.Store }

func (e Email) GetTransport() string { return e.Transport }
func (e Email) GetFrom() string      { return e.From }
func (e Email) GetFromName() string  { return e.FromName }
func (e Email) GetSMTP() SMTP        { return e.SMTP }
func (e Email) GetMailgun() Mailgun  { return e.Mailgun }
func (e Email) GetAMQP() AMQP        { return e.AMQP }

func (s SMTP) GetHost() string     { return s.Host }
func (s SMTP) GetPort() int        { return s.Port }
func (s SMTP) GetEnableSSL() bool  { return s.EnableSSL }
func (s SMTP) GetUsername() string { return s.Username }
func (s SMTP) GetPassword() string { return s.Password }

func (m Mailgun) GetDomain() string  { return m.Domain }
func (m Mailgun) GetAPIKey() string  { return m.APIKey }
func (m Mailgun) GetAPIBase() string { return m.APIBase }

func (a AMQP) GetURL() string   { return a.URL }
func (a AMQP) GetQueue() string { return a.Queue }

func (r Redis) GetAddr() string      { return r.Addr }
func (r Redis) GetPassword() string  { return r.Password }
func (r Redis) GetDB() int           { return r.DB }
func (r Redis) GetKeyPrefix() string { return r.KeyPrefix }

func (a Admin) GetEnabled() bool    { return a.Enabled }
func (a Admin) GetUsername() string { return a.Username }
func (a Admin) GetEmail() string    { return a.Email }
func (a Admin) GetPassword() string { return a.Password }
func (a Admin) GetFullName() string { return a.FullName }
func (a Admin) GetPhone() string    { return a.Phone }
func (a Admin) GetUseHashid() bool  { return a.UseHashid }
