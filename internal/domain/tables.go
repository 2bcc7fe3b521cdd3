package domain

var Tables = []interface{}{
	// System
	&SysConfig{},
	// Messaging
	&ChatDevice{},
}
