package auth

import "notaspese/internal/core"

func userFixture() core.User {
	return core.User{ID: "u1", Email: "alice@example.com"}
}
