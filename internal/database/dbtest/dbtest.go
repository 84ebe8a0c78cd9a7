// Пакет dbtest — PostgreSQL в Docker-контейнере для интеграционных тестов.
// Тесты запускаются только при установленной TEST_INTEGRATION.
package dbtest

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/bigkaa/fantasy-cricket/internal/config"
	"github.com/bigkaa/fantasy-cricket/internal/database"
)

const (
	dbName     = "fantasy_test"
	dbUser     = "fantasy"
	dbPassword = "test-password"
	jwtSecret  = "integration-secret-0123456789abcdef"
)

// Logger — логгер для интеграционных тестов.
func Logger() *slog.Logger {
	if testing.Verbose() {
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// StartPostgres запускает PostgreSQL контейнер и возвращает конфигурацию,
// загруженную через config.Load(). Миграции не применяются.
func StartPostgres(t *testing.T) *config.Config {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("Пропуск интеграционного теста: TEST_INTEGRATION не установлена")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"docker.io/postgres:17-alpine",
		postgres.WithDatabase(dbName),
		postgres.WithUsername(dbUser),
		postgres.WithPassword(dbPassword),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("Не удалось запустить PostgreSQL контейнер: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Ошибка остановки контейнера: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Не удалось получить host контейнера: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Не удалось получить port контейнера: %v", err)
	}

	t.Setenv("FC_DB_HOST", host)
	t.Setenv("FC_DB_PORT", port.Port())
	t.Setenv("FC_DB_NAME", dbName)
	t.Setenv("FC_DB_USER", dbUser)
	t.Setenv("FC_DB_PASSWORD", dbPassword)
	t.Setenv("FC_DB_SSL_MODE", "disable")
	t.Setenv("FC_JWT_SECRET", jwtSecret)

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}
	return cfg
}

// NewPool запускает PostgreSQL, применяет миграции и возвращает пул.
func NewPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	cfg := StartPostgres(t)
	logger := Logger()

	if err := database.Migrate(cfg, logger); err != nil {
		t.Fatalf("Ошибка миграций: %v", err)
	}

	pool, err := database.Connect(context.Background(), cfg, logger)
	if err != nil {
		t.Fatalf("Ошибка подключения: %v", err)
	}
	t.Cleanup(pool.Close)

	return pool
}
