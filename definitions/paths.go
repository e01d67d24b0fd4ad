package defs

import "os"

const (
	DirMode  = os.FileMode(0755)
	FileMode = os.FileMode(0644)
)

const (
	// Configuration is INI. When conf.d holds any drop-ins they replace the
	// main file; drop-ins load in name order, later ones overriding earlier ones.
	ConfDir     = "/etc/mountkit"
	ConfDropin  = ConfDir + "/conf.d"
	DefaultConf = "mountkit.conf"

	ConfEnv    = "MOUNTKIT_CONF_FILE"
	ConfDirEnv = "MOUNTKIT_CONF_DIR"
)
