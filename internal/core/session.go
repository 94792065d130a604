package core

// CreateSession issues a new token for username. Sessions never expire.
func (r *Registry) CreateSession(username string) string {
	token := r.newToken()

	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions[token] = username
	return token
}

// SessionUser resolves a token to its username.
func (r *Registry) SessionUser(token string) (string, bool) {
	if token == "" {
		return "", false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	username, ok := r.sessions[token]
	return username, ok
}

// EndSession forgets a token. Unknown tokens are ignored.
func (r *Registry) EndSession(token string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, token)
}
