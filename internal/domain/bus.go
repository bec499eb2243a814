package domain

// TurnBus routes turns from channels to the router and replies back.
type TurnBus interface {
	Publish(turn Turn)
	Subscribe() <-chan Turn
	SendReply(reply Reply)
	OnReply(channelName string, handler func(Reply))
	Close()
}
