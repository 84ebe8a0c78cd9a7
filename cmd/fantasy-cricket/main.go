// Точка входа Fantasy Cricket — веб-сервис фэнтези-крикета с админ-панелью.
// Команды: serve (HTTP-сервер), migrate (миграции БД), promote-admins
// (повышение пользователей из allowlist), set-role (смена роли пользователя),
// issue-token (выпуск токена сессии).
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
)

func main() {
	code := runMain(Execute, os.Stderr)
	if code != 0 {
		os.Exit(code)
	}
}

func runMain(execute func() error, stderr io.Writer) int {
	err := execute()
	if err == nil {
		return 0
	}
	if errors.Is(err, context.Canceled) {
		fmt.Fprintln(stderr, "прервано")
		return 130
	}
	fmt.Fprintln(stderr, "ошибка:", err)
	return 1
}
