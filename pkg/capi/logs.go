package capi

// FilterLogsAfter returns the records strictly newer than offset, preserving
// order. A record is newer when its timestamp is after the offset's, or when
// the timestamps are equal and the message differs. A nil offset keeps all
// records.
func FilterLogsAfter(records []LogRecord, offset *LogOffset) []LogRecord {
	if offset == nil {
		return records
	}

	filtered := make([]LogRecord, 0, len(records))

	for _, record := range records {
		if isNewer(record, offset) {
			filtered = append(filtered, record)
		}
	}

	return filtered
}

func isNewer(record LogRecord, offset *LogOffset) bool {
	if record.Timestamp.After(offset.Timestamp) {
		return true
	}

	return record.Timestamp.Equal(offset.Timestamp) && record.Message != offset.Message
}
