package conversation

import "strings"

// State is the position of a user in the navigation menu tree.
type State string

const (
	StateWelcome        State = "WELCOME"
	StateMainMenu       State = "MAIN_MENU"
	StateNavigationHelp State = "NAVIGATION_HELP"
	StateLocationSearch State = "LOCATION_SEARCH"
	StateRoutePlanning  State = "ROUTE_PLANNING"
	StateTrafficInfo    State = "TRAFFIC_INFO"
	StateSettings       State = "SETTINGS"
)

// InitialState is assigned to every new or reset session.
const InitialState = StateWelcome

// PathSeparator joins states in Session.NavigationPath.
const PathSeparator = " -> "

// AllStates lists every known state in menu order.
func AllStates() []State {
	return []State{
		StateWelcome,
		StateMainMenu,
		StateNavigationHelp,
		StateLocationSearch,
		StateRoutePlanning,
		StateTrafficInfo,
		StateSettings,
	}
}

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	_, ok := handlers[s]
	return ok
}

func (s State) String() string { return string(s) }

// ParseState maps stored text onto a State. Unknown values are preserved so
// Transition can treat them as WELCOME.
func ParseState(v string) State {
	return State(strings.ToUpper(strings.TrimSpace(v)))
}

// AppendPath adds next to an existing navigation path.
func AppendPath(path string, next State) string {
	if strings.TrimSpace(path) == "" {
		return string(next)
	}
	return path + PathSeparator + string(next)
}
