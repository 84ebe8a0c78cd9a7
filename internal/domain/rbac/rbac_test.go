package rbac

import (
	"sort"
	"testing"
)

func TestParseRole(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Role
	}{
		{name: "ADMIN", raw: "ADMIN", want: RoleAdmin},
		{name: "USER", raw: "USER", want: RoleUser},
		{name: "lower case admin — не распознаётся", raw: "admin", want: RoleUnknown},
		{name: "пустая строка", raw: "", want: RoleUnknown},
		{name: "пробелы вокруг — не распознаётся", raw: " ADMIN ", want: RoleUnknown},
		{name: "мусор", raw: "SUPERUSER", want: RoleUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseRole(tt.raw); got != tt.want {
				t.Errorf("ParseRole(%q) = %q, хотели %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestRole_IsAdmin(t *testing.T) {
	if !RoleAdmin.IsAdmin() {
		t.Error("RoleAdmin.IsAdmin() = false")
	}
	for _, r := range []Role{RoleUser, RoleUnknown, Role("admin")} {
		if r.IsAdmin() {
			t.Errorf("Role(%q).IsAdmin() = true", r)
		}
	}
}

func TestRole_IsValid(t *testing.T) {
	if !RoleUser.IsValid() || !RoleAdmin.IsValid() {
		t.Error("известные роли должны быть валидны")
	}
	if RoleUnknown.IsValid() {
		t.Error("RoleUnknown не должна быть валидной")
	}
}

func TestLevel_String(t *testing.T) {
	if LevelAdmin.String() != "admin" || LevelAuthenticated.String() != "authenticated" || LevelPublic.String() != "public" {
		t.Error("неожиданные имена уровней")
	}
}

func TestAllowlist(t *testing.T) {
	a := NewAllowlist([]string{"Admin@Fantasy.test", " ops@fantasy.test ", ""})

	if a.Len() != 2 {
		t.Fatalf("Len() = %d, ожидается 2", a.Len())
	}

	tests := []struct {
		email string
		want  bool
	}{
		{"admin@fantasy.test", true},
		{"ADMIN@FANTASY.TEST", true},
		{"  ops@fantasy.test", true},
		{"user@fantasy.test", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := a.Contains(tt.email); got != tt.want {
			t.Errorf("Contains(%q) = %v, хотели %v", tt.email, got, tt.want)
		}
	}

	emails := a.Emails()
	sort.Strings(emails)
	if len(emails) != 2 || emails[0] != "admin@fantasy.test" || emails[1] != "ops@fantasy.test" {
		t.Errorf("Emails() = %v", emails)
	}
}

func TestAllowlist_Nil(t *testing.T) {
	var a *Allowlist
	if a.Contains("admin@fantasy.test") {
		t.Error("nil allowlist не должен ничего содержать")
	}
	if a.Len() != 0 || a.Emails() != nil {
		t.Error("nil allowlist должен быть пустым")
	}
}
