// Copyright (c) 2026 VirtKey Authors. All rights reserved.
// Use of this source code is governed by Apache License 2.0 found in the LICENSE file.

package fidobridge

import "strconv"

// CounterMode selects the signature-counter replay-protection policy.
type CounterMode int

const (
	// CounterServerManaged is the default. Platform authenticators (Apple,
	// Microsoft, Google) broadcast a constant 0 and must not be penalized;
	// counter regressions from unsynchronized storage copies advance the
	// stored value instead of rejecting the signer.
	CounterServerManaged CounterMode = iota

	// CounterStrict is the legacy hardware-key mode for classic USB security
	// keys with genuinely monotonic hardware counters. Once the stored counter
	// is positive, any non-increasing reported value (zero included) is
	// treated as a cloning/replay signal.
	CounterStrict

	// CounterDisabled ignores the client value entirely, for environments
	// that cannot guarantee counter integrity.
	CounterDisabled
)

func (m CounterMode) String() string {
	switch m {
	case CounterServerManaged:
		return "serverManaged"
	case CounterStrict:
		return "strict"
	case CounterDisabled:
		return "disabled"
	default:
		return "counterMode(" + strconv.Itoa(int(m)) + ")"
	}
}

// ResolveCounter computes the next stored signature counter from the stored
// value and the client-reported value under the given mode. It is a pure
// function; a SignCountInvalid error means strict mode detected a replay.
func ResolveCounter(stored, reported uint32, mode CounterMode) (uint32, error) {
	switch mode {
	case CounterDisabled:
		return stored + 1, nil

	case CounterStrict:
		if stored > 0 && reported <= stored {
			return 0, newError(KindSignCountInvalid, "counter", "",
				"reported "+strconv.FormatUint(uint64(reported), 10)+
					" does not exceed stored "+strconv.FormatUint(uint64(stored), 10))
		}
		if reported == 0 {
			return stored + 1, nil
		}
		return reported, nil

	default: // CounterServerManaged
		if reported == 0 {
			return stored + 1, nil
		}
		if stored > 0 && reported < stored {
			return stored + 1, nil
		}
		if reported > stored+1 {
			return reported, nil
		}
		return stored + 1, nil
	}
}
