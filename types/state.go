package types

import (
	"sync"
	"time"

	"github.com/datazip-inc/binlogdir/logger"
	"github.com/go-mysql-org/go-mysql/mysql"
	"github.com/goccy/go-json"
	"github.com/spf13/viper"
)

// State is the resume point persisted between read sessions
type State struct {
	*sync.RWMutex `json:"-"`
	Position      mysql.Position `json:"position"`
	Processed     int64          `json:"processed"`
	SchemaToken   string         `json:"schema_token"`
	SessionID     string         `json:"session_id,omitempty"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

func NewState() *State {
	return &State{RWMutex: &sync.RWMutex{}}
}

// Advance records the cursor returned by a finished session
func (s *State) Advance(pos mysql.Position, processed int64, sessionID string) {
	s.Lock()
	defer s.Unlock()
	s.Position = pos
	s.Processed += processed
	s.SessionID = sessionID
	s.UpdatedAt = time.Now().UTC()
	s.LogState()
}

// Reset starts over from a freshly captured snapshot
func (s *State) Reset(token string, pos mysql.Position) {
	s.Lock()
	defer s.Unlock()
	s.SchemaToken = token
	s.Position = pos
	s.Processed = 0
	s.UpdatedAt = time.Now().UTC()
	s.LogState()
}

func (s *State) Cursor() mysql.Position {
	s.RLock()
	defer s.RUnlock()
	return s.Position
}

func (s *State) isZero() bool {
	return s.Position.Name == "" && s.SchemaToken == ""
}

func (s *State) MarshalJSON() ([]byte, error) {
	if s.isZero() {
		return json.Marshal(nil)
	}

	type Alias State
	return json.Marshal(Alias(*s))
}

// LogState writes the state file; callers must hold the lock
func (s *State) LogState() {
	if s.isZero() {
		logger.Info("state is empty")
		return
	}
	if viper.GetString("CONFIG_FOLDER") == "" {
		logger.Debugf("skipping state file, resume position %s", s.Position)
		return
	}

	if err := logger.FileLogger(s, "state", ".json"); err != nil {
		logger.Fatalf("failed to create state file: %s", err)
	}
}
