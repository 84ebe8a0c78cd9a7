// Пакет errors — конструкторы стандартных ошибок API Fantasy Cricket.
// Единый формат: {"error": "<message>", "code": "<CODE>"}.
// Все HTTP-ответы с ошибками должны использовать WriteError.
package errors

import (
	"encoding/json"
	"net/http"
)

// Коды ошибок API.
const (
	CodeValidationError = "VALIDATION_ERROR"
	CodeNotFound        = "NOT_FOUND"
	// CodeUnauthenticated — нет валидного токена/сессии.
	CodeUnauthenticated = "UNAUTHENTICATED"
	// CodeInsufficientRole — сессия есть, но роли недостаточно.
	CodeInsufficientRole   = "INSUFFICIENT_ROLE"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeConflict           = "CONFLICT"
	CodeInternalError      = "INTERNAL_ERROR"
)

// MessageUnauthorized — сообщение Route Guard для обоих видов отказа.
const MessageUnauthorized = "Unauthorized access"

// errorBody — структура тела ответа ошибки.
type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// WriteError записывает ответ ошибки в стандартном формате.
// statusCode — HTTP статус-код, code — машиночитаемый код, message — описание.
func WriteError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorBody{
		Error: message,
		Code:  code,
	})
}

// --- Конструкторы для типичных ошибок ---

// ValidationError — 400 некорректные входные данные.
func ValidationError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeValidationError, message)
}

// NotFound — 404 ресурс не найден.
func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, CodeNotFound, message)
}

// Unauthenticated — 401 без сессии.
func Unauthenticated(w http.ResponseWriter) {
	WriteError(w, http.StatusUnauthorized, CodeUnauthenticated, MessageUnauthorized)
}

// InsufficientRole — 401 (не 403) при недостаточной роли: клиенты
// ожидают 401 для любого отказа Route Guard.
func InsufficientRole(w http.ResponseWriter) {
	WriteError(w, http.StatusUnauthorized, CodeInsufficientRole, MessageUnauthorized)
}

// InvalidCredentials — 401 неверный email или пароль.
func InvalidCredentials(w http.ResponseWriter) {
	WriteError(w, http.StatusUnauthorized, CodeInvalidCredentials, "Invalid email or password")
}

// Conflict — 409 конфликт (дублирующийся ресурс).
func Conflict(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, CodeConflict, message)
}

// InternalError — 500 внутренняя ошибка.
func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, CodeInternalError, message)
}
