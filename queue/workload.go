package queue

// URLWorkload is the estimated size of a URL task, whose content is
// unknown until it is fetched.
const URLWorkload int64 = 2 << 20

// Estimate returns the workload of a payload in bytes: the data length for
// files and refreshes, the UTF-8 length of a note's text and URLWorkload
// for URLs. A nil payload is free.
func Estimate(p Payload) int64 {
	switch p := p.(type) {
	case FilePayload:
		return int64(len(p.Data))
	case RefreshPayload:
		return int64(len(p.Data))
	case NotePayload:
		return int64(len(p.Text))
	case URLPayload:
		return URLWorkload
	default:
		return 0
	}
}
