package message

import "github.com/kursadbilgin/attendance-notifier/internal/domain"

const DefaultSignature = "Attendance Office"

const (
	greeting = "Hello, guardian of {student_name},\n\n"
	alert    = "Notice for the guardian of {student_name}\n\n"
	closing  = "\n\nRegards,\n{signature}"
)

var templates = map[domain.EventTag]string{
	domain.EventAttendance: greeting +
		"Attendance recorded.\nDate: {date}\nTime: {time}\n\nWe wish them a good day!" + closing,
	domain.EventLateAttendance: greeting +
		"Attendance recorded, arriving late after {late_cutoff}.\nDate: {date}\nTime: {time}" + closing,
	domain.EventTrialUsed: greeting +
		"Attendance on {date} was recorded as a free trial.\n{trials_left} free trial(s) left this month.\n\n" +
		"Please pay the monthly subscription to keep attending without limits." + closing,
	domain.EventPaymentReceipt: greeting +
		"Subscription for {month} received. Amount: {amount}." + closing,
	domain.EventPaymentAttendance: greeting +
		"{payment_line}\nAttendance recorded for {student_name} on {date}.\n\nThank you for your cooperation!" + closing,
	domain.EventAbsenceFirst: alert +
		"First absence recorded today ({date}).\nPlease let us know the reason for the absence." + closing,
	domain.EventAbsenceSecond: alert +
		"Absent for the second day in a row ({date}).\nPlease send us the reason so we can follow up." + closing,
	domain.EventAbsenceUrgent: alert +
		"Consecutive absence: absent for {consecutive_days} days up to {date}.\n" +
		"Please contact us urgently. If there is any problem, tell us and we will help." + closing,
	domain.EventAbsenceRecurred: alert +
		"Absent again today ({date}) after earlier absences this month.\nPlease help them attend regularly." + closing,
	domain.EventAbsenceGeneric: alert +
		"No attendance was recorded today ({date}).\nPlease contact us with any questions." + closing,
	domain.EventLowAttendance: alert +
		"Attendance over the last {window_days} school days is {rate}%.\n" +
		"Regular attendance matters. Please get in touch so we can support them." + closing,
	domain.EventHighRisk: alert +
		"We are concerned about {student_name}'s continued enrolment:\n{reasons}\n\n" +
		"Please contact us at your earliest convenience." + closing,
}

const (
	broadcastHeader = "Announcement: {title}\n\n"
	broadcastFooter = "\n\nRegards,\n{signature}"
)

// Template returns the fixed template for an event tag.
func Template(tag domain.EventTag) (string, bool) {
	tpl, ok := templates[tag]
	return tpl, ok
}

// WrapBroadcast surrounds operator-authored content with the fixed
// announcement header and signature.
func WrapBroadcast(content string) string {
	return broadcastHeader + content + broadcastFooter
}
