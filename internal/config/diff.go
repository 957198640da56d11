package config

import "reflect"

// Changes describes what differs between two configs. Only the log level
// and the notifier are applied live; every other changed section is listed
// in Restart.
type Changes struct {
	LogLevelChanged bool
	LogLevel        LogLevel

	NotifyChanged bool
	Notify        NotifyConfig

	// Restart names the top-level sections (by YAML key) that changed and
	// only take effect after a restart.
	Restart []string
}

// Empty reports whether nothing changed.
func (c Changes) Empty() bool {
	return !c.LogLevelChanged && !c.NotifyChanged && len(c.Restart) == 0
}

// Diff compares old and new.
func Diff(old, new *Config) Changes {
	var c Changes
	if old.Server.LogLevel != new.Server.LogLevel {
		c.LogLevelChanged = true
		c.LogLevel = new.Server.LogLevel
	}
	if old.Notify != new.Notify {
		c.NotifyChanged = true
		c.Notify = new.Notify
	}

	oldServer, newServer := old.Server, new.Server
	oldServer.LogLevel, newServer.LogLevel = "", ""

	sections := []struct {
		key      string
		old, new any
	}{
		{"server", oldServer, newServer},
		{"audio", old.Audio, new.Audio},
		{"recognizer", old.Recognizer, new.Recognizer},
		{"recording", old.Recording, new.Recording},
		{"processing", old.Processing, new.Processing},
		{"providers", old.Providers, new.Providers},
		{"resilience", old.Resilience, new.Resilience},
		{"inventory", old.Inventory, new.Inventory},
		{"sync", old.Sync, new.Sync},
		{"recipes", old.Recipes, new.Recipes},
		{"ui", old.UI, new.UI},
	}
	for _, s := range sections {
		if !reflect.DeepEqual(s.old, s.new) {
			c.Restart = append(c.Restart, s.key)
		}
	}
	return c
}
