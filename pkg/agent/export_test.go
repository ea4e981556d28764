package agent

var TruncateUTF8 = truncateUTF8
