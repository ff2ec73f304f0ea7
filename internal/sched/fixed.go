package sched

// fixed is a 17.14 fixed-point number, matching spec.md §4.1's MLFQS
// arithmetic and Pintos's fixed-point.h (p=17, q=14).
type fixed int64

const fixedQ = 14
const fixedF fixed = 1 << fixedQ

func itox(n int) fixed      { return fixed(n) * fixedF }
func xtoi(x fixed) int      { return int(x / fixedF) }
func xtoiRound(x fixed) int {
	if x >= 0 {
		return int((x + fixedF/2) / fixedF)
	}
	return int((x - fixedF/2) / fixedF)
}
func addxn(x fixed, n int) fixed { return x + fixed(n)*fixedF }
func subxn(x fixed, n int) fixed { return x - fixed(n)*fixedF }
func mulxy(x, y fixed) fixed     { return fixed(int64(x) * int64(y) / int64(fixedF)) }
func mulxn(x fixed, n int) fixed { return x * fixed(n) }
func divxy(x, y fixed) fixed     { return fixed(int64(x) * int64(fixedF) / int64(y)) }
func divxn(x fixed, n int) fixed { return x / fixed(n) }
