package wrapup

import (
	_ "embed"
	"strings"
)

// Short messages (one-liners)
const (
	// Command descriptions
	MsgRootShort       = "Provision a guest application inside a compatibility wrapper"
	MsgUpShort         = "Run every stage that is not yet complete"
	MsgStatusShort     = "Show which stages are complete without running them"
	MsgUninstallShort  = "Remove the wrapper, keeping the download cache"
	MsgPurgeShort      = "Remove the wrapper and the base packages"
	MsgSnapshotsShort  = "List configuration snapshots"
	MsgPruneShort      = "Apply the snapshot retention limit"
	MsgRestoreShort    = "Restore the newest configuration snapshot"
	MsgVersionShort    = "Print version information"
	MsgCompletionShort = "Generate shell completion script"

	// Status messages
	MsgDeclined      = "Nothing was changed."
	MsgPruned        = "Removed %d snapshot(s)."
	MsgRestored      = "Restored [path]%s[/path] from [path]%s[/path]"
	MsgVersionFormat = "wrapup version %s\n  commit: %s\n  built:  %s\n"

	// Flag descriptions
	MsgFlagVerbose = "Increase verbosity (-v INFO, -vv DEBUG, -vvv TRACE)"
	MsgFlagDryRun  = "Report what would run without changing anything"
	MsgFlagConfig  = "Read configuration from this file instead of the default"
	MsgFlagFormat  = "Output format: auto, term, text, json or yaml"
)

// Long messages from embedded files
var (
	//go:embed msgs/root-long.txt
	msgRootLongRaw string
	MsgRootLong    = strings.TrimSpace(msgRootLongRaw)

	//go:embed msgs/up-long.txt
	msgUpLongRaw string
	MsgUpLong    = strings.TrimSpace(msgUpLongRaw)

	//go:embed msgs/up-example.txt
	msgUpExampleRaw string
	MsgUpExample    = strings.TrimRight(msgUpExampleRaw, "\n")

	//go:embed msgs/status-long.txt
	msgStatusLongRaw string
	MsgStatusLong    = strings.TrimSpace(msgStatusLongRaw)

	//go:embed msgs/status-example.txt
	msgStatusExampleRaw string
	MsgStatusExample    = strings.TrimRight(msgStatusExampleRaw, "\n")

	//go:embed msgs/uninstall-long.txt
	msgUninstallLongRaw string
	MsgUninstallLong    = strings.TrimSpace(msgUninstallLongRaw)

	//go:embed msgs/purge-long.txt
	msgPurgeLongRaw string
	MsgPurgeLong    = strings.TrimSpace(msgPurgeLongRaw)

	//go:embed msgs/snapshots-long.txt
	msgSnapshotsLongRaw string
	MsgSnapshotsLong    = strings.TrimSpace(msgSnapshotsLongRaw)

	//go:embed msgs/completion-long.txt
	msgCompletionLongRaw string
	MsgCompletionLong    = strings.TrimSpace(msgCompletionLongRaw)

	//go:embed msgs/usage-template.txt
	msgUsageTemplateRaw string
	MsgUsageTemplate    = strings.TrimSpace(msgUsageTemplateRaw)
)
