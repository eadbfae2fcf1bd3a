package config

import (
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/ogurasousui/attendance-sync/internal/core/attendance"
	"github.com/ogurasousui/attendance-sync/internal/core/geo"
	"github.com/ogurasousui/attendance-sync/internal/core/geolocation"
	"gopkg.in/yaml.v3"
)

// Store ドライバ
const (
	StorePostgres = "postgres"
	StoreSheet    = "sheet"
	StoreMemory   = "memory"
)

// Client の通信方式
const (
	TransportHTTP = "http"
	TransportGRPC = "grpc"
)

// Config はアプリケーション全体の設定を表現します。
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Store       StoreConfig       `yaml:"store"`
	Database    DatabaseConfig    `yaml:"database"`
	Attendance  AttendanceConfig  `yaml:"attendance"`
	Geolocation GeolocationConfig `yaml:"geolocation"`
	Client      ClientConfig      `yaml:"client"`
	Log         LogConfig         `yaml:"log"`
}

// ServerConfig はサーバーの待ち受けに関する設定です。
type ServerConfig struct {
	GRPCListenAddr string `yaml:"grpc_listen_addr"`
	HTTPListenAddr string `yaml:"http_listen_addr"`
}

// StoreConfig は勤怠記録の保存先です。
type StoreConfig struct {
	Driver    string `yaml:"driver"`
	SheetPath string `yaml:"sheet_path"`
	SheetName string `yaml:"sheet_name"`
}

// DatabaseConfig は PostgreSQL 接続に関する設定です。
type DatabaseConfig struct {
	Host               string        `yaml:"host"`
	Port               int           `yaml:"port"`
	User               string        `yaml:"user"`
	Password           string        `yaml:"password"`
	Name               string        `yaml:"name"`
	SSLMode            string        `yaml:"ssl_mode"`
	MaxOpenConns       int           `yaml:"max_open_conns"`
	MaxIdleConns       int           `yaml:"max_idle_conns"`
	ConnMaxLifetime    time.Duration `yaml:"-"`
	ConnMaxIdleTime    time.Duration `yaml:"-"`
	ConnMaxLifetimeRaw string        `yaml:"conn_max_lifetime"`
	ConnMaxIdleTimeRaw string        `yaml:"conn_max_idle_time"`
}

// AttendanceConfig は勤怠判定の設定です。サーバーと端末で同じ値を使います。
type AttendanceConfig struct {
	Timezone         string         `yaml:"timezone"`
	LateThresholdRaw string         `yaml:"late_threshold"`
	Zones            []ZoneConfig   `yaml:"zones"`
	EnforceGeofence  bool           `yaml:"enforce_geofence"`
	Location         *time.Location `yaml:"-"`
	LateThreshold    time.Duration  `yaml:"-"`
}

// ZoneConfig は拠点の定義です。
type ZoneConfig struct {
	Name         string  `yaml:"name"`
	Latitude     float64 `yaml:"latitude"`
	Longitude    float64 `yaml:"longitude"`
	RadiusMeters float64 `yaml:"radius_m"`
}

// GeolocationConfig は位置取得の設定です。
type GeolocationConfig struct {
	HighAccuracy     *bool         `yaml:"high_accuracy"`
	TimeoutRaw       string        `yaml:"timeout"`
	MaxReadingAgeRaw string        `yaml:"max_reading_age"`
	WatchIntervalRaw string        `yaml:"watch_interval"`
	Timeout          time.Duration `yaml:"-"`
	MaxReadingAge    time.Duration `yaml:"-"`
	WatchInterval    time.Duration `yaml:"-"`
}

// ClientConfig は端末側 CLI の設定です。
type ClientConfig struct {
	EmployeeID        string        `yaml:"employee_id"`
	EmployeeName      string        `yaml:"employee_name"`
	DeviceInfo        string        `yaml:"device_info"`
	Transport         string        `yaml:"transport"`
	Endpoint          string        `yaml:"endpoint"`
	QueuePath         string        `yaml:"queue_path"`
	RequestTimeoutRaw string        `yaml:"request_timeout"`
	ProbeIntervalRaw  string        `yaml:"probe_interval"`
	RequestTimeout    time.Duration `yaml:"-"`
	ProbeInterval     time.Duration `yaml:"-"`
}

// LogConfig はログ出力の設定です。
type LogConfig struct {
	Level string `yaml:"level"`
}

// Load は指定されたパスから設定ファイルを読み込みます。
// 役割ごとの必須項目は ValidateServer / ValidateClient で確認します。
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	if err := cfg.validateAndNormalize(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validateAndNormalize() error {
	if err := c.Attendance.validateAndNormalize(); err != nil {
		return err
	}
	if err := c.Geolocation.validateAndNormalize(); err != nil {
		return err
	}
	if err := c.Client.normalize(); err != nil {
		return err
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}

	c.Store.Driver = strings.ToLower(strings.TrimSpace(c.Store.Driver))
	if c.Store.Driver == "" {
		c.Store.Driver = StorePostgres
	}
	if c.Store.SheetPath == "" {
		c.Store.SheetPath = "attendance.xlsx"
	}

	return nil
}

// ValidateServer はサーバー起動に必要な項目を確認します。
func (c *Config) ValidateServer() error {
	if c.Server.GRPCListenAddr == "" && c.Server.HTTPListenAddr == "" {
		return fmt.Errorf("config: server.grpc_listen_addr or server.http_listen_addr must be set")
	}
	switch c.Store.Driver {
	case StorePostgres:
		return c.ValidateDatabase()
	case StoreSheet, StoreMemory:
		return nil
	default:
		return fmt.Errorf("config: unknown store.driver %q", c.Store.Driver)
	}
}

// ValidateDatabase は database セクションを確認し、接続時間の設定を解釈します。
func (c *Config) ValidateDatabase() error {
	return c.Database.validateAndNormalize()
}

// ValidateClient は端末 CLI に必要な項目を確認します。
func (c *Config) ValidateClient() error {
	cl := c.Client
	if strings.TrimSpace(cl.EmployeeID) == "" {
		return fmt.Errorf("config: client.employee_id must be set")
	}
	if cl.Endpoint == "" {
		return fmt.Errorf("config: client.endpoint must be set")
	}
	switch cl.Transport {
	case TransportHTTP:
		u, err := url.Parse(cl.Endpoint)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("config: client.endpoint must be an http(s) URL for the http transport")
		}
	case TransportGRPC:
		if _, _, err := net.SplitHostPort(cl.Endpoint); err != nil {
			return fmt.Errorf("config: client.endpoint must be host:port for the grpc transport: %w", err)
		}
	default:
		return fmt.Errorf("config: unknown client.transport %q", cl.Transport)
	}
	return nil
}

func (d *DatabaseConfig) validateAndNormalize() error {
	if d.Host == "" {
		return fmt.Errorf("config: database.host must be set")
	}
	if d.Port == 0 {
		return fmt.Errorf("config: database.port must be set")
	}
	if d.User == "" {
		return fmt.Errorf("config: database.user must be set")
	}
	if d.Password == "" {
		return fmt.Errorf("config: database.password must be set")
	}
	if d.Name == "" {
		return fmt.Errorf("config: database.name must be set")
	}
	if d.SSLMode == "" {
		d.SSLMode = "disable"
	}

	lifetime, err := parseDurationAllowEmpty(d.ConnMaxLifetimeRaw)
	if err != nil {
		return fmt.Errorf("config: database.conn_max_lifetime: %w", err)
	}
	d.ConnMaxLifetime = lifetime

	idleTime, err := parseDurationAllowEmpty(d.ConnMaxIdleTimeRaw)
	if err != nil {
		return fmt.Errorf("config: database.conn_max_idle_time: %w", err)
	}
	d.ConnMaxIdleTime = idleTime

	return nil
}

func (a *AttendanceConfig) validateAndNormalize() error {
	tz := a.Timezone
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return fmt.Errorf("config: attendance.timezone: %w", err)
	}
	a.Location = loc

	a.LateThreshold = attendance.DefaultLateThreshold
	if a.LateThresholdRaw != "" {
		th, err := attendance.ParseClock(a.LateThresholdRaw)
		if err != nil {
			return fmt.Errorf("config: attendance.late_threshold: %w", err)
		}
		a.LateThreshold = th
	}

	for i, z := range a.Zones {
		if z.RadiusMeters <= 0 {
			return fmt.Errorf("config: attendance.zones[%d].radius_m must be positive", i)
		}
		if z.Latitude < -90 || z.Latitude > 90 || z.Longitude < -180 || z.Longitude > 180 {
			return fmt.Errorf("config: attendance.zones[%d] has out of range coordinates", i)
		}
		if z.Name == "" {
			a.Zones[i].Name = "zone-" + strconv.Itoa(i+1)
		}
	}
	if a.EnforceGeofence && len(a.Zones) == 0 {
		return fmt.Errorf("config: attendance.enforce_geofence requires at least one zone")
	}
	return nil
}

// Policy は勤怠判定の Policy を返します。
func (a AttendanceConfig) Policy() attendance.Policy {
	return attendance.NewPolicy(a.Location, a.LateThreshold)
}

// GeoZones は拠点を geo.Zone に変換します。
func (a AttendanceConfig) GeoZones() []geo.Zone {
	zones := make([]geo.Zone, 0, len(a.Zones))
	for _, z := range a.Zones {
		zones = append(zones, geo.Zone{Name: z.Name, Latitude: z.Latitude, Longitude: z.Longitude, RadiusMeters: z.RadiusMeters})
	}
	return zones
}

func (g *GeolocationConfig) validateAndNormalize() error {
	defaults := geolocation.DefaultOptions()

	var err error
	if g.Timeout, err = parseDurationDefault(g.TimeoutRaw, defaults.Timeout); err != nil {
		return fmt.Errorf("config: geolocation.timeout: %w", err)
	}
	if g.MaxReadingAge, err = parseDurationDefault(g.MaxReadingAgeRaw, defaults.MaxReadingAge); err != nil {
		return fmt.Errorf("config: geolocation.max_reading_age: %w", err)
	}
	if g.WatchInterval, err = parseDurationDefault(g.WatchIntervalRaw, defaults.WatchInterval); err != nil {
		return fmt.Errorf("config: geolocation.watch_interval: %w", err)
	}
	return nil
}

// Options は geolocation.Options に変換します。
func (g GeolocationConfig) Options() geolocation.Options {
	opts := geolocation.DefaultOptions()
	if g.HighAccuracy != nil {
		opts.HighAccuracy = *g.HighAccuracy
	}
	opts.Timeout = g.Timeout
	opts.MaxReadingAge = g.MaxReadingAge
	opts.WatchInterval = g.WatchInterval
	return opts
}

func (c *ClientConfig) normalize() error {
	c.Transport = strings.ToLower(strings.TrimSpace(c.Transport))
	if c.Transport == "" {
		c.Transport = TransportHTTP
	}
	if c.QueuePath == "" {
		c.QueuePath = "attendance-queue.db"
	}

	var err error
	if c.RequestTimeout, err = parseDurationDefault(c.RequestTimeoutRaw, 10*time.Second); err != nil {
		return fmt.Errorf("config: client.request_timeout: %w", err)
	}
	if c.ProbeInterval, err = parseDurationDefault(c.ProbeIntervalRaw, 30*time.Second); err != nil {
		return fmt.Errorf("config: client.probe_interval: %w", err)
	}
	return nil
}

// ParseLevel はログレベル名を slog.Level に変換します。空文字は info です。
func ParseLevel(name string) (slog.Level, error) {
	var level slog.Level
	if name == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo, fmt.Errorf("config: log.level: %w", err)
	}
	return level, nil
}

func parseDurationAllowEmpty(raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	return d, nil
}

func parseDurationDefault(raw string, fallback time.Duration) (time.Duration, error) {
	d, err := parseDurationAllowEmpty(raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return fallback, nil
	}
	return d, nil
}

// DSN は pgx 用の接続文字列を返します。
func (d DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     net.JoinHostPort(d.Host, strconv.Itoa(d.Port)),
		Path:     "/" + d.Name,
		RawQuery: url.Values{"sslmode": {d.SSLMode}}.Encode(),
	}
	return u.String()
}

// ResolvePath は設定ファイルのパスを決めます。フラグ、CONFIG_PATH、assets/local.yaml の順です。
func ResolvePath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := os.Getenv("CONFIG_PATH"); env != "" {
		return env
	}
	return "assets/local.yaml"
}
