package encoding

// LengthEncodeString encodes str as string<lenenc>.
// https://dev.mysql.com/doc/dev/mysql-server/latest/page_protocol_basic_dt_strings.html#sect_protocol_basic_dt_string_le
func LengthEncodeString(str string) []byte {
	return append(LengthEncodeInteger(uint64(len(str))), []byte(str)...)
}

// NullTerminatedString encodes str as a NUL-terminated string.
func NullTerminatedString(str string) []byte {
	return append([]byte(str), 0x00)
}
