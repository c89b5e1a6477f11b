package session

import "fmt"

// View is a screen of the dashboard. Exactly one view is visible at a time.
type View string

const (
	ViewHome     View = "home"
	ViewEntry    View = "entry"
	ViewRecovery View = "recovery"
	ViewStudent  View = "student"
	ViewTeacher  View = "teacher"
)

// Event is a user action that may change the visible view.
type Event string

const (
	EventStart        Event = "start"
	EventRecover      Event = "recover"
	EventSendRecovery Event = "send_recovery"
	EventLoginStudent Event = "login_student"
	EventLoginStaff   Event = "login_staff"
	EventLoginFailed  Event = "login_failed"
	EventAnalyze      Event = "analyze"
	EventBack         Event = "back"
)

var transitions = map[View]map[Event]View{
	ViewHome: {
		EventStart: ViewEntry,
	},
	ViewEntry: {
		EventRecover:      ViewRecovery,
		EventLoginStudent: ViewStudent,
		EventLoginStaff:   ViewTeacher,
		EventLoginFailed:  ViewEntry,
	},
	ViewRecovery: {
		EventSendRecovery: ViewEntry,
		EventBack:         ViewEntry,
	},
	ViewStudent: {
		EventAnalyze: ViewStudent,
		EventBack:    ViewHome,
	},
	ViewTeacher: {
		EventBack: ViewEntry,
	},
}

// ParseView validates a view name coming from a form.
func ParseView(s string) (View, error) {
	v := View(s)
	if _, ok := transitions[v]; !ok {
		return "", fmt.Errorf("unknown view %q", s)
	}
	return v, nil
}

// Transition returns the view reached from `from` by ev.
func Transition(from View, ev Event) (View, error) {
	next, ok := transitions[from][ev]
	if !ok {
		return from, fmt.Errorf("no transition from %s on %s", from, ev)
	}
	return next, nil
}
