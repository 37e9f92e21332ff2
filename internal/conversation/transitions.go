package conversation

import (
	"strings"

	"github.com/wolfman30/wa-navigator/internal/reply"
)

// Menu option ids sent back by button and list replies.
const (
	OptionNavigationHelp    = "navigation_help"
	OptionFindLocation      = "find_location"
	OptionTrafficInfo       = "traffic_info"
	OptionSettings          = "settings"
	OptionHelp              = "help"
	OptionGetDirections     = "get_directions"
	OptionOptimizeRoute     = "optimize_route"
	OptionAlternativeRoutes = "alternative_routes"
	OptionRealTimeNav       = "real_time_nav"
)

// Result is the outcome of one state machine step.
type Result struct {
	Next    State
	Replies []reply.Spec
}

type stateHandler func(input, raw string) Result

var handlers = map[State]stateHandler{
	StateWelcome:        handleWelcome,
	StateMainMenu:       handleMainMenu,
	StateNavigationHelp: handleNavigationHelp,
	StateLocationSearch: handleLocationSearch,
	StateRoutePlanning:  handleRoutePlanning,
	StateTrafficInfo:    handleTrafficInfo,
	StateSettings:       handleSettings,
}

// Transition computes the next state and the replies for input received in
// state. Matching is case-insensitive; free text is echoed as typed. Unknown
// states behave like WELCOME. It never returns zero replies.
func Transition(state State, input string) Result {
	raw := strings.TrimSpace(input)
	h, ok := handlers[state]
	if !ok {
		h = handleWelcome
	}
	return h(strings.ToLower(raw), raw)
}

func handleWelcome(_, _ string) Result {
	return Result{Next: StateMainMenu, Replies: []reply.Spec{welcomeButtons()}}
}

func handleMainMenu(input, _ string) Result {
	switch input {
	case OptionNavigationHelp:
		return Result{Next: StateNavigationHelp, Replies: []reply.Spec{navigationHelpList()}}
	case OptionFindLocation:
		return Result{Next: StateLocationSearch, Replies: []reply.Spec{reply.Text{Body: locationSearchPrompt}}}
	case OptionTrafficInfo:
		return Result{Next: StateTrafficInfo, Replies: []reply.Spec{trafficButtons()}}
	default:
		return mainMenu()
	}
}

func handleNavigationHelp(input, _ string) Result {
	switch input {
	case OptionGetDirections:
		return Result{Next: StateRoutePlanning, Replies: []reply.Spec{reply.Text{Body: directionsPrompt}}}
	case OptionOptimizeRoute:
		return comingSoon("🔄 Route optimization feature coming soon!")
	case OptionAlternativeRoutes:
		return comingSoon("🛣️ Alternative routes feature coming soon!")
	case OptionRealTimeNav:
		return comingSoon("📱 Real-time navigation feature coming soon!")
	default:
		return mainMenu()
	}
}

func handleLocationSearch(_, raw string) Result {
	body := "🔍 Searching for: " + raw + "\n\n" +
		"Found these locations:\n" +
		"1. " + raw + " - Main Location\n" +
		"2. " + raw + " - Secondary Location\n" +
		"3. Nearby alternatives\n\n" +
		"Would you like directions to any of these?"
	return Result{
		Next: StateLocationSearch,
		Replies: []reply.Spec{reply.Buttons{
			Body: body,
			Buttons: []reply.Button{
				{ID: "get_directions_1", Title: "Directions to #1"},
				{ID: "get_directions_2", Title: "Directions to #2"},
				{ID: "search_again", Title: "Search Again"},
			},
		}},
	}
}

func handleRoutePlanning(_, raw string) Result {
	body := "🚗 Route Planning\n\n" +
		"Processing your route request: " + raw + "\n\n" +
		"Estimated time: 25 minutes\n" +
		"Distance: 15.2 km\n" +
		"Traffic: Light traffic\n\n" +
		"Would you like to start navigation?"
	return Result{
		Next: StateRoutePlanning,
		Replies: []reply.Spec{reply.Buttons{
			Body: body,
			Buttons: []reply.Button{
				{ID: "start_navigation", Title: "Start Navigation"},
				{ID: "alternative_route", Title: "See Alternatives"},
				{ID: "main_menu", Title: "Main Menu"},
			},
		}},
	}
}

func handleTrafficInfo(_, _ string) Result {
	return Result{
		Next:    StateMainMenu,
		Replies: []reply.Spec{reply.Text{Body: trafficUpdate}, mainMenuList()},
	}
}

func handleSettings(_, _ string) Result {
	return mainMenu()
}

func mainMenu() Result {
	return Result{Next: StateMainMenu, Replies: []reply.Spec{mainMenuList()}}
}

func comingSoon(text string) Result {
	return Result{Next: StateMainMenu, Replies: []reply.Spec{reply.Text{Body: text}, mainMenuList()}}
}

const (
	welcomeGreeting = "🚗 Welcome to Navigation Assistant! 🗺️\n\n" +
		"I'm here to help you with directions, traffic updates, and route planning.\n\n" +
		"What would you like to do today?"

	mainMenuBody = "🏠 Main Menu\n\nHow can I assist you with navigation today?"

	navigationHelpBody = "🧭 Navigation Help\n\n" +
		"I can help you with:\n" +
		"• Step-by-step directions\n" +
		"• Route optimization\n" +
		"• Alternative routes\n" +
		"• Real-time navigation\n\n" +
		"What type of navigation help do you need?"

	locationSearchPrompt = "📍 Location Search\n\n" +
		"Please type the location you're looking for:\n" +
		"• Business name (e.g., 'Starbucks')\n" +
		"• Full address\n" +
		"• Landmark or POI\n\n" +
		"Example: 'Central Park, New York' or 'nearest gas station'"

	trafficPrompt = "🚦 Traffic Information\n\n" +
		"Get real-time traffic updates for your area.\n\n" +
		"What would you like to know?"

	directionsPrompt = "🗺️ Getting Directions\n\n" +
		"Please provide:\n" +
		"1. Your starting location (or 'current location')\n" +
		"2. Your destination\n\n" +
		"Format: 'From [Start] to [Destination]'\n" +
		"Example: 'From current location to Times Square, NYC'"

	trafficUpdate = "🚦 Traffic Update\n\n" +
		"Current traffic conditions:\n" +
		"• Main routes: Light traffic\n" +
		"• Highway 101: Moderate delays\n" +
		"• Downtown area: Heavy traffic\n\n" +
		"Recommended: Use alternative routes"

	servicesSection = "Navigation Services"
)

func welcomeButtons() reply.Buttons {
	return reply.Buttons{
		Body: welcomeGreeting,
		Buttons: []reply.Button{
			{ID: OptionNavigationHelp, Title: "🧭 Navigation Help"},
			{ID: OptionFindLocation, Title: "📍 Find Location"},
			{ID: OptionTrafficInfo, Title: "🚦 Traffic Info"},
		},
	}
}

func mainMenuList() reply.List {
	return reply.List{
		Body:         mainMenuBody,
		ButtonLabel:  "Choose Option",
		SectionTitle: servicesSection,
		Rows: []reply.Row{
			{ID: OptionNavigationHelp, Title: "Navigation Help", Description: "Get directions and route help"},
			{ID: OptionFindLocation, Title: "Find Location", Description: "Search for places and addresses"},
			{ID: OptionTrafficInfo, Title: "Traffic Info", Description: "Check traffic conditions"},
			{ID: OptionSettings, Title: "Settings", Description: "Manage your preferences"},
			{ID: OptionHelp, Title: "Help & Support", Description: "Get help using this service"},
		},
	}
}

func navigationHelpList() reply.List {
	return reply.List{
		Body:         navigationHelpBody,
		ButtonLabel:  "Select Option",
		SectionTitle: servicesSection,
		Rows: []reply.Row{
			{ID: OptionGetDirections, Title: "Get Directions", Description: "Get step-by-step directions"},
			{ID: OptionOptimizeRoute, Title: "Optimize Route", Description: "Find the fastest route"},
			{ID: OptionAlternativeRoutes, Title: "Alternative Routes", Description: "Explore different route options"},
			{ID: OptionRealTimeNav, Title: "Real-time Navigation", Description: "Live navigation assistance"},
		},
	}
}

func trafficButtons() reply.Buttons {
	return reply.Buttons{
		Body: trafficPrompt,
		Buttons: []reply.Button{
			{ID: "current_traffic", Title: "Current Traffic"},
			{ID: "route_traffic", Title: "Route Traffic"},
			{ID: "traffic_alerts", Title: "Traffic Alerts"},
		},
	}
}
