package handlers

import (
	"net/http"
)

// Routes bundles the handlers served by the API
type Routes struct {
	Middleware *Middleware
	Auth       *AuthHandler
	Families   *FamilyHandler
	Access     *FamilyAccess
	Events     *EventHandler
	Live       *LiveHandler
	Users      *UserHandler
	Health     *HealthHandler

	// RateLimit wraps the unauthenticated credential routes. Nil disables it.
	RateLimit func(http.Handler) http.Handler
}

// Register adds every API route to mux
func (rt *Routes) Register(mux *http.ServeMux) {
	auth := rt.Middleware.RequireAuth
	member := func(h http.HandlerFunc) http.HandlerFunc {
		return auth(rt.Access.RequireMember(h))
	}
	limit := func(h http.HandlerFunc) http.Handler {
		if rt.RateLimit == nil {
			return h
		}
		return rt.RateLimit(h)
	}

	mux.HandleFunc("GET /health", rt.Health.Health)

	// Public routes
	mux.Handle("POST /auth/signup", limit(rt.Auth.SignUp))
	mux.Handle("POST /auth/login", limit(rt.Auth.Login))
	mux.Handle("POST /register", limit(rt.Auth.Register))

	// Family routes
	mux.HandleFunc("POST /families", auth(rt.Families.CreateFamily))
	mux.HandleFunc("GET /families/{id}", auth(rt.Families.GetFamily))
	mux.HandleFunc("PUT /families/{id}", auth(rt.Families.UpdateFamily))
	mux.HandleFunc("DELETE /families/{id}", auth(rt.Families.DeleteFamily))
	mux.Handle("POST /families/{id}/validate", limit(auth(rt.Families.ValidateFamily)))
	mux.HandleFunc("GET /families/{id}/members", member(rt.Users.ListMembers))

	// Event routes
	mux.HandleFunc("GET /families/{id}/events", member(rt.Events.ListEvents))
	mux.HandleFunc("POST /families/{id}/events", member(rt.Events.CreateEvent))
	mux.HandleFunc("PUT /families/{id}/events/{eventId}", member(rt.Events.UpdateEvent))
	mux.HandleFunc("DELETE /families/{id}/events/{eventId}", member(rt.Events.DeleteEvent))
	mux.HandleFunc("GET /families/{id}/events/live", member(rt.Live.StreamEvents))

	// User routes
	mux.HandleFunc("GET /users/{id}", auth(rt.Users.GetUser))
	mux.HandleFunc("PUT /users/{id}", auth(rt.Users.UpdateUser))
	mux.HandleFunc("DELETE /users/{id}", auth(rt.Users.DeleteUser))
}
