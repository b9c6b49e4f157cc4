package ambience

import "github.com/gopxl/beep"

// busChunk is how many frames a bus mixes per member call.
const busChunk = 512

// bus sums its members the way beep.Mixer does, but members can also be
// detached explicitly, so the graph shrinks even while no device pulls.
// Members that drain are dropped on the next pull. Guarded by Engine.mu.
type bus struct {
	members []beep.Streamer
	buf     [busChunk][2]float64
}

func (b *bus) Add(s ...beep.Streamer) {
	b.members = append(b.members, s...)
}

// Remove detaches s and reports whether it was a member.
func (b *bus) Remove(s beep.Streamer) bool {
	for i, m := range b.members {
		if m == s {
			b.members = append(b.members[:i], b.members[i+1:]...)
			return true
		}
	}
	return false
}

// Clear detaches every member.
func (b *bus) Clear() {
	clear(b.members)
	b.members = b.members[:0]
}

// Len counts the attached members.
func (b *bus) Len() int { return len(b.members) }

// Stream mixes every member into samples. A bus never drains.
func (b *bus) Stream(samples [][2]float64) (n int, ok bool) {
	for len(samples) > 0 {
		chunk := min(len(samples), busChunk)
		out := samples[:chunk]
		clear(out)
		for i := 0; i < len(b.members); {
			tmp := b.buf[:chunk]
			sn, sok := b.members[i].Stream(tmp)
			for j := range tmp[:sn] {
				out[j][0] += tmp[j][0]
				out[j][1] += tmp[j][1]
			}
			if !sok {
				b.members = append(b.members[:i], b.members[i+1:]...)
				continue
			}
			i++
		}
		samples = samples[chunk:]
		n += chunk
	}
	return n, true
}

func (b *bus) Err() error { return nil }
