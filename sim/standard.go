package sim

// Standard returns a bench with a simulated device for each of nicknames,
// attached at the address addrs gives it.  Nicknames without an address or
// without a model are skipped.  Only one of several nicknames that alias an
// address can be attached; the last one listed wins.
func Standard(addrs map[string]string, nicknames ...string) *Bench {
	b := NewBench()
	for _, nick := range nicknames {
		addr, ok := addrs[nick]
		if !ok {
			continue
		}
		if d := NewDevice(nick, b.Optics); d != nil {
			b.Attach(addr, d)
		}
	}
	return b
}

// NewDevice returns the simulated model of a device nickname, or nil
func NewDevice(nickname string, o *Optics) Device {
	switch nickname {
	case "TSL-710", "TSL-510":
		return NewTSL(nickname, o)
	case "TSL-210F":
		return NewTSL210F(o)
	case "TLB-6500":
		return NewTLB6500(o)
	case "86120":
		return NewWavelengthMeter(o)
	case "LI5645", "LI5660":
		return NewLockIn(nickname, o)
	}
	return nil
}
