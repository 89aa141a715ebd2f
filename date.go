package fat

import "time"

// dosEpoch is 00:00:00 UTC 1 January 1980, the zero point of every FAT
// date field.
var dosEpoch = time.Date(1980, time.January, 1, 0, 0, 0, 0, time.UTC)

// ParseDate reads a FAT directory entry date stamp:
//
//	Bits 0-4:  day of month, 1-31
//	Bits 5-8:  month of year, 1-12
//	Bits 9-15: years since 1980, 0-127
//
// It returns a time.Time with a time-of-day of 00:00:00 UTC. Day or month
// of zero is unspecified by the FAT spec; that case returns time.Time{} so
// that time.Time.IsZero() can be used by callers to detect it.
func ParseDate(input uint16) time.Time {
	day := input & 0x1F
	month := input & 0x1E0 >> 5
	yearsSince1980 := input & 0xFE00 >> 9

	if day == 0 || month == 0 {
		return time.Time{}
	}

	return time.Date(1980+int(yearsSince1980), time.Month(month), int(day), 0, 0, 0, 0, time.UTC)
}

// ParseTime reads a FAT directory entry time stamp:
//
//	Bits 0-4:   2-second count, 0-29 (0-58 seconds)
//	Bits 5-10:  minutes, 0-59
//	Bits 11-15: hours, 0-23
//
// It returns a time.Time with a date of January 1, year 1, so that
// time.Time.IsZero() detects midnight exactly.
func ParseTime(input uint16) time.Time {
	seconds := int(input&0x1F) * 2
	minutes := input & 0x7E0 >> 5
	hours := input & 0xF800 >> 11

	result := time.Date(1, 1, 1, int(hours), int(minutes), seconds, 0, time.UTC)
	if result.Day() > 1 {
		return time.Date(1, 1, 1, 23, 59, 59, 0, time.UTC)
	}
	return result
}

// EncodeDate packs a calendar date into a FAT date field. Dates before the
// DOS epoch clamp to the epoch; dates after 2107 clamp to the maximum
// encodable year.
func EncodeDate(t time.Time) uint16 {
	year := t.Year() - 1980
	if year < 0 {
		year = 0
	}
	if year > 127 {
		year = 127
	}
	return uint16(year)<<9 | uint16(t.Month())<<5 | uint16(t.Day())
}

// EncodeTime packs a time-of-day into a FAT time field. Sub-2-second
// precision is truncated, per the field's 2-second granularity.
func EncodeTime(t time.Time) uint16 {
	return uint16(t.Hour())<<11 | uint16(t.Minute())<<5 | uint16(t.Second()/2)
}

// POSIXFromDOS combines a FAT date and time field pair into a single UTC
// time.Time.
func POSIXFromDOS(date, dosTime uint16) time.Time {
	d := ParseDate(date)
	if d.IsZero() {
		return time.Time{}
	}
	t := ParseTime(dosTime)
	return time.Date(d.Year(), d.Month(), d.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.UTC)
}

// DOSFromPOSIX splits a UTC time.Time into a FAT date and time field pair.
// It is the inverse of POSIXFromDOS over the valid DOS range (1980-2107,
// 2-second time granularity): DOSFromPOSIX(POSIXFromDOS(d, t)) == (d, t)
// whenever d and t were themselves produced by EncodeDate/EncodeTime (i.e.
// round to 2-second boundaries).
func DOSFromPOSIX(t time.Time) (date, dosTime uint16) {
	if t.Before(dosEpoch) {
		t = dosEpoch
	}
	return EncodeDate(t), EncodeTime(t)
}
