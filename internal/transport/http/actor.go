package http

import (
	"net/http"

	"github.com/hemovault/bloodbank/internal/domain"
)

const (
	actorIDHeader   = "X-Actor-Id"
	actorRoleHeader = "X-Actor-Role"
)

// actorFromRequest reads the identity the upstream auth layer attached.
// The engine trusts these headers; verifying them is not its job. Unknown
// or missing values degrade to an anonymous requester, which the role rules
// then restrict.
func actorFromRequest(r *http.Request) domain.Actor {
	id := r.Header.Get(actorIDHeader)
	if id == "" {
		return domain.Anonymous
	}
	role := domain.Role(r.Header.Get(actorRoleHeader))
	switch role {
	case domain.RoleAdmin, domain.RoleStaff, domain.RoleRequester:
	default:
		role = domain.RoleRequester
	}
	return domain.Actor{ID: id, Role: role}
}
