package thinking

// Cache holds live sessions by id for the lifetime of the Service that owns
// it. The persisted record stays the source of truth across processes.
type Cache struct {
	sessions map[string]*Session
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{sessions: make(map[string]*Session)}
}

func (c *Cache) Get(id string) (*Session, bool) {
	s, ok := c.sessions[id]
	return s, ok
}

func (c *Cache) Put(id string, s *Session) {
	c.sessions[id] = s
}

func (c *Cache) Delete(id string) {
	delete(c.sessions, id)
}

func (c *Cache) Len() int { return len(c.sessions) }
