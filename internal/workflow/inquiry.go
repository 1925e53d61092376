package workflow

// InquiryStatus is the lifecycle state of a buyer inquiry.
type InquiryStatus string

const (
	InquiryNew              InquiryStatus = "new"
	InquiryContacted        InquiryStatus = "contacted"
	InquiryViewingScheduled InquiryStatus = "viewing_scheduled"
	InquiryClosed           InquiryStatus = "closed"
)

// InquiryStatuses lists every inquiry state in lifecycle order.
var InquiryStatuses = []InquiryStatus{InquiryNew, InquiryContacted, InquiryViewingScheduled, InquiryClosed}

// Valid reports whether s is a known inquiry state.
func (s InquiryStatus) Valid() bool {
	switch s {
	case InquiryNew, InquiryContacted, InquiryViewingScheduled, InquiryClosed:
		return true
	}
	return false
}

// ParseInquiryStatus converts a wire value to an InquiryStatus.
func ParseInquiryStatus(v string) (InquiryStatus, error) {
	s := InquiryStatus(v)
	if !s.Valid() {
		return "", ErrUnknownState
	}
	return s, nil
}

// NextInquiryStatus computes the state an inquiry ends up in when actor asks to move it
// from current to target. changed is false when the request is a no-op.
//
// Agents may move between contacted and viewing_scheduled and may close at any time.
// Going back to new or leaving closed is reserved for administrators.
func NextInquiryStatus(current, target InquiryStatus, actor Actor) (next InquiryStatus, changed bool, err error) {
	if !current.Valid() || !target.Valid() {
		return current, false, ErrInvalidTransition
	}
	if current == target {
		return current, false, nil
	}
	if actor == ActorAdmin {
		return target, true, nil
	}
	if target == InquiryNew || current == InquiryClosed {
		return current, false, ErrAdminRequired
	}
	return target, true, nil
}
