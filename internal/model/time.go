package model

import (
	"bytes"
	"time"
)

// LocalTime 在 JSON 中以本地时区的 "YYYY-MM-DD HH:MM:SS" 表示，用于归档记录。
type LocalTime time.Time

const timeFormat = "2006-01-02 15:04:05"

func (t LocalTime) MarshalJSON() ([]byte, error) {
	if time.Time(t).IsZero() {
		return []byte("null"), nil
	}
	b := make([]byte, 0, len(timeFormat)+2)
	b = append(b, '"')
	b = time.Time(t).AppendFormat(b, timeFormat)
	return append(b, '"'), nil
}

func (t *LocalTime) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*t = LocalTime{}
		return nil
	}
	parsed, err := time.ParseInLocation(`"`+timeFormat+`"`, string(data), time.Local)
	if err != nil {
		return err
	}
	*t = LocalTime(parsed)
	return nil
}

// String 返回与 JSON 相同的格式。
func (t LocalTime) String() string {
	return time.Time(t).Format(timeFormat)
}
