package authevents

const (
	TopicName                     = "googleauth"
	calendarConnectCompletedName  = TopicName + ".calendarConnect.completed"
	calendarDisconnectedName      = TopicName + ".calendarDisconnected"
	calendarHealthCheckFailedName = TopicName + ".calendarHealthCheck.failed"
	calendarTokenRefreshDoneName  = TopicName + ".tokenRefresh.completed"
)

type CalendarConnectCompleted struct {
	UserUID      string
	SubjectUID   string
	Scopes       []string
	Success      bool
	ErrorMessage string
}

func (e CalendarConnectCompleted) GetEventTypeName() string {
	return calendarConnectCompletedName
}

func (e CalendarConnectCompleted) GetAggregateName() string {
	return e.UserUID
}

type CalendarDisconnected struct {
	UserUID    string
	SubjectUID string
	Reason     string
}

func (e CalendarDisconnected) GetEventTypeName() string {
	return calendarDisconnectedName
}

func (e CalendarDisconnected) GetAggregateName() string {
	return e.UserUID
}

type CalendarHealthCheckFailed struct {
	UserUID      string
	FailureCount int
	Disconnected bool
}

func (e CalendarHealthCheckFailed) GetEventTypeName() string {
	return calendarHealthCheckFailedName
}

func (e CalendarHealthCheckFailed) GetAggregateName() string {
	return e.UserUID
}

type TokenRefreshCompleted struct {
	UserUID string
}

func (e TokenRefreshCompleted) GetEventTypeName() string {
	return calendarTokenRefreshDoneName
}

func (e TokenRefreshCompleted) GetAggregateName() string {
	return e.UserUID
}
