package ports

type SchedulerService interface {
	Start()
	Stop()
	// AddNow returns the unix timestamp lifetime seconds from now.
	AddNow(lifetime int64) int64
	AfterNow(expiry int64) bool
	// ScheduleTaskOnce runs task at the given unix timestamp, or right away if it's in the past.
	ScheduleTaskOnce(at int64, task func()) error
}
