package domain

var Tables = []interface{}{
	// System
	&SysOpr{},
	&SysOprLog{},
	// Bot
	&BotTenant{},
	&BotProfile{},
	&ChatTurn{},
}
