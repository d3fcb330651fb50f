package casregistry

// Usage restricts which programs accept a given backend.
type Usage uint8

const (
	// UsageCLI marks backends available to the certanchor CLI.
	UsageCLI Usage = 1 << iota
	// UsageDaemon marks backends available to long-running daemons (certanchord, certanchor-casgrpcd).
	UsageDaemon
)

func (u Usage) allows(want Usage) bool { return u&want != 0 }
