// Пакет config — загрузка и валидация конфигурации Fantasy Cricket
// из переменных окружения (и .env файла, если он есть).
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации сервиса.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string
	// Разрешённые CORS origins для /api (пусто — CORS выключен)
	CORSOrigins []string

	// --- PostgreSQL ---

	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	// Режим SSL: disable, require, verify-ca, verify-full
	DBSSLMode string

	// --- Сессионный токен ---

	// Секрет HS256 для выпуска и проверки токенов
	JWTSecret string
	// URL JWKS внешнего источника токенов (опционально, RS256)
	JWTJWKSURL string
	// Ожидаемый issuer токена
	JWTIssuer string
	// Время жизни выпускаемого токена
	JWTTTL time.Duration
	// Допустимое отклонение часов при проверке exp/nbf
	JWTLeeway time.Duration
	// Интервал обновления JWKS-ключей
	JWKSRefreshInterval time.Duration
	// Имя cookie с токеном сессии
	SessionCookieName string
	// Secure flag для cookie (true за HTTPS)
	SecureCookie bool

	// --- Авторизация ---

	// Admin Allowlist — email администраторов (fallback/bootstrap)
	AdminEmails []string
	// Продвигать ли пользователей из allowlist до ADMIN при старте
	BootstrapAdmins bool
	// Таймаут чтения роли из БД (strong check)
	RoleLookupTimeout time.Duration
	// TTL кэша ролей, прочитанных из БД (0 — без кэша)
	RoleCacheTTL time.Duration
	// Максимальный размер кэша ролей
	RoleCacheSize int
	// Префиксы путей, доступных только администраторам
	AdminPathPrefixes []string
	// Префиксы путей, доступных любому аутентифицированному пользователю
	UserPathPrefixes []string
	// Заголовки ответа, удаляемые Edge Gate
	StripResponseHeaders []string

	// --- Фоновые задачи ---

	// Cron-расписание live-scoring планировщика
	LiveScoringSchedule string
	// Интервал монитора выплат призов
	WalletFixInterval time.Duration
	// Максимальное время повторов стартовых задач
	StartupMaxElapsed time.Duration

	// --- Внешние зависимости ---

	// URL провайдера данных о матчах (только для мониторинга доступности)
	CricketAPIURL string
	// Группа в метриках topologymetrics
	DephealthGroup string
	// Интервал проверки зависимостей
	DephealthCheckInterval time.Duration

	// --- Graceful shutdown ---

	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
// Если в рабочем каталоге есть .env — он подгружается первым,
// уже заданные переменные окружения не перезаписываются.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return nil, fmt.Errorf(".env: %w", err)
		}
	}

	cfg := &Config{}
	var err error

	// --- Сервер ---

	cfg.Port, err = getEnvInt("FC_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("FC_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("FC_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	cfg.LogLevel, err = parseLogLevel(getEnvDefault("FC_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("FC_LOG_LEVEL: %w", err)
	}

	cfg.LogFormat = getEnvDefault("FC_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("FC_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	cfg.CORSOrigins = parseCSV(getEnvDefault("FC_CORS_ORIGINS", ""))

	// --- PostgreSQL ---

	cfg.DBHost, err = getEnvRequired("FC_DB_HOST")
	if err != nil {
		return nil, err
	}
	cfg.DBPort, err = getEnvInt("FC_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("FC_DB_PORT: %w", err)
	}
	cfg.DBName, err = getEnvRequired("FC_DB_NAME")
	if err != nil {
		return nil, err
	}
	cfg.DBUser, err = getEnvRequired("FC_DB_USER")
	if err != nil {
		return nil, err
	}
	cfg.DBPassword, err = getEnvRequired("FC_DB_PASSWORD")
	if err != nil {
		return nil, err
	}
	cfg.DBSSLMode = getEnvDefault("FC_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return nil, fmt.Errorf("FC_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}

	// --- Сессионный токен ---

	// Секрет нужен всегда: логин выпускает HS256-токены даже при внешнем JWKS.
	cfg.JWTSecret, err = getEnvRequired("FC_JWT_SECRET")
	if err != nil {
		return nil, err
	}
	if len(cfg.JWTSecret) < 32 {
		return nil, errors.New("FC_JWT_SECRET: секрет должен быть не короче 32 символов")
	}

	cfg.JWTJWKSURL = getEnvDefault("FC_JWT_JWKS_URL", "")
	cfg.JWTIssuer = getEnvDefault("FC_JWT_ISSUER", "fantasy-cricket")

	cfg.JWTTTL, err = getEnvDuration("FC_JWT_TTL", 24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("FC_JWT_TTL: %w", err)
	}
	if cfg.JWTTTL < time.Minute {
		return nil, fmt.Errorf("FC_JWT_TTL: значение %s меньше минимального 1m", cfg.JWTTTL)
	}

	cfg.JWTLeeway, err = getEnvDuration("FC_JWT_LEEWAY", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("FC_JWT_LEEWAY: %w", err)
	}

	cfg.JWKSRefreshInterval, err = getEnvDuration("FC_JWKS_REFRESH_INTERVAL", 15*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("FC_JWKS_REFRESH_INTERVAL: %w", err)
	}

	cfg.SessionCookieName = getEnvDefault("FC_SESSION_COOKIE", "fc_session")

	cfg.SecureCookie, err = getEnvBool("FC_SECURE_COOKIE", false)
	if err != nil {
		return nil, fmt.Errorf("FC_SECURE_COOKIE: %w", err)
	}

	// --- Авторизация ---

	cfg.AdminEmails = parseCSV(getEnvDefault("FC_ADMIN_EMAILS", ""))

	cfg.BootstrapAdmins, err = getEnvBool("FC_BOOTSTRAP_ADMINS", false)
	if err != nil {
		return nil, fmt.Errorf("FC_BOOTSTRAP_ADMINS: %w", err)
	}

	cfg.RoleLookupTimeout, err = getEnvDuration("FC_ROLE_LOOKUP_TIMEOUT", 2*time.Second)
	if err != nil {
		return nil, fmt.Errorf("FC_ROLE_LOOKUP_TIMEOUT: %w", err)
	}
	if cfg.RoleLookupTimeout <= 0 {
		return nil, errors.New("FC_ROLE_LOOKUP_TIMEOUT: таймаут должен быть положительным")
	}

	cfg.RoleCacheTTL, err = getEnvDuration("FC_ROLE_CACHE_TTL", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("FC_ROLE_CACHE_TTL: %w", err)
	}

	cfg.RoleCacheSize, err = getEnvInt("FC_ROLE_CACHE_SIZE", 10000)
	if err != nil {
		return nil, fmt.Errorf("FC_ROLE_CACHE_SIZE: %w", err)
	}
	if cfg.RoleCacheSize < 1 {
		return nil, fmt.Errorf("FC_ROLE_CACHE_SIZE: значение %d должно быть положительным", cfg.RoleCacheSize)
	}

	cfg.AdminPathPrefixes = parsePrefixes(getEnvDefault("FC_ADMIN_PATH_PREFIXES", "/admin"))
	cfg.UserPathPrefixes = parsePrefixes(getEnvDefault("FC_USER_PATH_PREFIXES",
		"/profile,/wallet,/my-teams,/join,/create-team"))
	if len(cfg.AdminPathPrefixes) == 0 {
		return nil, errors.New("FC_ADMIN_PATH_PREFIXES: нужен хотя бы один префикс")
	}
	if err := checkDisjoint(cfg.AdminPathPrefixes, cfg.UserPathPrefixes); err != nil {
		return nil, err
	}

	cfg.StripResponseHeaders = parseCSV(getEnvDefault("FC_STRIP_RESPONSE_HEADERS",
		"X-Middleware-Rewrite,X-Middleware-Next,X-Middleware-Redirect,X-Nextjs-Redirect"))

	// --- Фоновые задачи ---

	cfg.LiveScoringSchedule = getEnvDefault("FC_LIVE_SCORING_SCHEDULE", "@every 1m")

	cfg.WalletFixInterval, err = getEnvDuration("FC_WALLET_FIX_INTERVAL", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("FC_WALLET_FIX_INTERVAL: %w", err)
	}
	if cfg.WalletFixInterval < time.Second {
		return nil, fmt.Errorf("FC_WALLET_FIX_INTERVAL: значение %s меньше минимального 1s", cfg.WalletFixInterval)
	}

	cfg.StartupMaxElapsed, err = getEnvDuration("FC_STARTUP_MAX_ELAPSED", time.Minute)
	if err != nil {
		return nil, fmt.Errorf("FC_STARTUP_MAX_ELAPSED: %w", err)
	}

	// --- Внешние зависимости ---

	cfg.CricketAPIURL = strings.TrimRight(getEnvDefault("FC_CRICKET_API_URL", ""), "/")
	cfg.DephealthGroup = getEnvDefault("FC_DEPHEALTH_GROUP", "fantasy-cricket")
	cfg.DephealthCheckInterval, err = getEnvDuration("FC_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("FC_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	// --- Graceful shutdown ---

	cfg.ShutdownTimeout, err = getEnvDuration("FC_SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("FC_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// DatabaseDSN возвращает строку подключения к PostgreSQL для pgxpool.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// DatabaseURL возвращает URL подключения со схемой scheme
// ("postgres" для dephealth, "pgx5" для golang-migrate).
func (c *Config) DatabaseURL(scheme string) string {
	u := url.URL{
		Scheme:   scheme,
		User:     url.UserPassword(c.DBUser, c.DBPassword),
		Host:     net.JoinHostPort(c.DBHost, strconv.Itoa(c.DBPort)),
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=" + url.QueryEscape(c.DBSSLMode),
	}
	return u.String()
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное булево значение: %q", val)
	}
	return b, nil
}

func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	return d, nil
}

func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}

// parseCSV разбирает строку, разделённую запятыми, на срез строк.
// Пробелы вокруг элементов убираются, пустые элементы игнорируются.
func parseCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

// parsePrefixes разбирает CSV префиксов путей: добавляет ведущий "/",
// убирает завершающий "/".
func parsePrefixes(s string) []string {
	raw := parseCSV(s)
	result := make([]string, 0, len(raw))
	for _, p := range raw {
		if !strings.HasPrefix(p, "/") {
			p = "/" + p
		}
		p = strings.TrimRight(p, "/")
		if p == "" {
			// "/" совпал бы со всеми путями
			continue
		}
		result = append(result, p)
	}
	return result
}

// checkDisjoint проверяет, что наборы admin- и user-префиксов не пересекаются
// (ни один префикс не вложен в префикс другого набора).
func checkDisjoint(adminPrefixes, userPrefixes []string) error {
	for _, a := range adminPrefixes {
		for _, u := range userPrefixes {
			if a == u || strings.HasPrefix(a, u+"/") || strings.HasPrefix(u, a+"/") {
				return fmt.Errorf("FC_USER_PATH_PREFIXES: префикс %q пересекается с admin-префиксом %q", u, a)
			}
		}
	}
	return nil
}
