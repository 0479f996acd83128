package usm

import (
	"os"
	"sync"

	"github.com/apex/log"
	"github.com/apex/log/handlers/text"
)

var logger log.Interface = log.Log
var logMu sync.RWMutex

// SetLogger replaces the logger used by the package. A nil logger restores the default.
func SetLogger(l log.Interface) {
	if l == nil {
		l = log.Log
	}

	logMu.Lock()
	logger = l
	logMu.Unlock()
}

func getLogger() log.Interface {
	logMu.RLock()
	defer logMu.RUnlock()
	return logger
}

// ConfigureLogging sends the default logger's output to stderr at the given level.
// Unknown levels fall back to info.
func ConfigureLogging(level string) {
	log.SetHandler(text.New(os.Stderr))

	lvl, err := log.ParseLevel(level)
	if err != nil {
		lvl = log.InfoLevel
	}
	log.SetLevel(lvl)
}
