package fake

// DB serves a fixed roster.
type DB struct {
	People   []string
	AgentIDs map[string]string
	Err      error
}

func NewDB(people []string, agentIDs map[string]string) *DB {
	return &DB{
		People:   people,
		AgentIDs: agentIDs,
	}
}

func (db *DB) GetPeople() ([]string, error) {
	if db.Err != nil {
		return nil, db.Err
	}
	return db.People, nil
}

func (db *DB) GetAgentIDs() (map[string]string, error) {
	if db.Err != nil {
		return nil, db.Err
	}
	if db.AgentIDs == nil {
		return map[string]string{}, nil
	}
	return db.AgentIDs, nil
}
