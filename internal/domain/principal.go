package domain

import "strings"

// Role — роль аутентифицированного пользователя.
type Role string

const (
	RoleOwner Role = "owner"
	RoleBuyer Role = "buyer"
)

// ParseRole разбирает роль без учёта регистра.
func ParseRole(raw string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(raw))); r {
	case RoleOwner, RoleBuyer:
		return r, nil
	}
	return "", InvalidField("role", ErrRoleInvalid)
}

// Principal — проверенная внешним аутентификатором пара (actor_id, role).
type Principal struct {
	ActorID string
	Role    Role
}

// IsOwner — владелец каталога.
func (p Principal) IsOwner() bool { return p.Role == RoleOwner }

// CommitMode задаёт протокол списания остатков для многострочного заказа.
type CommitMode string

const (
	// CommitModeBestEffort — условное списание по строкам; уже списанное при сбое не возвращается.
	CommitModeBestEffort CommitMode = "best_effort"
	// CommitModeAllOrNothing — все строки списываются атомарно или ни одна.
	CommitModeAllOrNothing CommitMode = "all_or_nothing"
)

// ParseCommitMode разбирает режим; пустая строка означает режим по умолчанию.
func ParseCommitMode(raw string) (CommitMode, error) {
	switch m := CommitMode(strings.ToLower(strings.TrimSpace(raw))); m {
	case "":
		return CommitModeBestEffort, nil
	case CommitModeBestEffort, CommitModeAllOrNothing:
		return m, nil
	}
	return "", ErrCommitModeInvalid
}
