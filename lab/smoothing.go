package lab

// Approach moves current a fraction rate of the way toward target.
func Approach(current, target, rate float64) float64 {
	return current + rate*(target-current)
}

// grow is the accumulator update: an Approach whose rate is clamped to
// [0, 1], which never lowers the accumulator and never exceeds ceiling.
func grow(current, target, rate, ceiling float64) float64 {
	if rate > 1 {
		rate = 1
	} else if rate < 0 || rate != rate {
		rate = 0
	}
	next := Approach(current, target, rate)
	if next < current {
		next = current
	}
	if next > ceiling {
		next = ceiling
	}
	return next
}
