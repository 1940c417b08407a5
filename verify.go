package sealreg

// VerifySequence checks a run of sealed records that claims to start at
// startMono: contiguous mono counts (the 2^32 wrap is a legal step), one
// uniform session id, and a checksum on every record that matches a
// recomputation. It returns the mono count the next record in the epoch
// must carry.
func VerifySequence(records []SealedRecord, startMono uint32) (nextMono uint32, err error) {
	expect := startMono
	for i, r := range records {
		if r.MonoCount != expect {
			return expect, ErrSeqGap
		}
		if i > 0 && r.SessionID != records[0].SessionID {
			return expect, ErrSessionMismatch
		}
		if !VerifySeal(r) {
			return expect, ErrChecksumMismatch
		}
		expect++ // wraps at 2^32, same as the counter
	}
	return expect, nil
}

// VerifyEpoch checks a full epoch: the run must start at mono zero and
// every record must carry the epoch's session id.
func VerifyEpoch(records []SealedRecord, sessionID uint8) error {
	if len(records) > 0 && records[0].SessionID != sessionID {
		return ErrSessionMismatch
	}
	_, err := VerifySequence(records, 0)
	return err
}
