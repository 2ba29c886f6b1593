package relaypool

import (
	"encoding/json"
	"fmt"

	"github.com/dep2p/go-nostrsigner/pkg/types"
)

// ============================================================================
//                          NIP-01 线协议编解码
// ============================================================================

// 客户端 → 中继：["REQ",id,filter] ["EVENT",ev] ["CLOSE",id]
// 中继 → 客户端：["EVENT",id,ev] ["EOSE",id] ["OK",id,bool,msg]
//                ["NOTICE",msg] ["CLOSED",id,msg]

func encodeReq(id string, filter types.Filter) ([]byte, error) {
	return json.Marshal([]interface{}{"REQ", id, filter})
}

func encodeClose(id string) ([]byte, error) {
	return json.Marshal([]interface{}{"CLOSE", id})
}

func encodeEvent(ev *types.Event) ([]byte, error) {
	return json.Marshal([]interface{}{"EVENT", ev})
}

// relayMessage 中继下行消息的解码结果
type relayMessage struct {
	Kind    string
	SubID   string
	Event   *types.Event
	EventID string
	OK      bool
	Message string
}

// decodeMessage 解析中继下行消息
//
// 未知标签不报错，返回 Kind 为空的消息，调用方直接忽略。
// 中继会随协议演进发送新标签，解析层不应因此断开连接。
func decodeMessage(data []byte) (relayMessage, error) {
	var arr []json.RawMessage
	if err := json.Unmarshal(data, &arr); err != nil {
		return relayMessage{}, fmt.Errorf("decode relay message: %w", err)
	}
	if len(arr) == 0 {
		return relayMessage{}, fmt.Errorf("decode relay message: empty array")
	}

	var label string
	if err := json.Unmarshal(arr[0], &label); err != nil {
		return relayMessage{}, fmt.Errorf("decode relay message label: %w", err)
	}

	msg := relayMessage{}
	switch label {
	case "EVENT":
		if len(arr) < 3 {
			return msg, fmt.Errorf("decode EVENT: want 3 elements, got %d", len(arr))
		}
		if err := json.Unmarshal(arr[1], &msg.SubID); err != nil {
			return msg, err
		}
		ev := &types.Event{}
		if err := json.Unmarshal(arr[2], ev); err != nil {
			return msg, fmt.Errorf("decode EVENT payload: %w", err)
		}
		msg.Kind = "EVENT"
		msg.Event = ev

	case "EOSE":
		if len(arr) < 2 {
			return msg, fmt.Errorf("decode EOSE: want 2 elements, got %d", len(arr))
		}
		if err := json.Unmarshal(arr[1], &msg.SubID); err != nil {
			return msg, err
		}
		msg.Kind = "EOSE"

	case "OK":
		if len(arr) < 3 {
			return msg, fmt.Errorf("decode OK: want 3 elements, got %d", len(arr))
		}
		if err := json.Unmarshal(arr[1], &msg.EventID); err != nil {
			return msg, err
		}
		if err := json.Unmarshal(arr[2], &msg.OK); err != nil {
			return msg, err
		}
		if len(arr) > 3 {
			_ = json.Unmarshal(arr[3], &msg.Message)
		}
		msg.Kind = "OK"

	case "NOTICE":
		if len(arr) > 1 {
			_ = json.Unmarshal(arr[1], &msg.Message)
		}
		msg.Kind = "NOTICE"

	case "CLOSED":
		if len(arr) < 2 {
			return msg, fmt.Errorf("decode CLOSED: want 2 elements, got %d", len(arr))
		}
		if err := json.Unmarshal(arr[1], &msg.SubID); err != nil {
			return msg, err
		}
		if len(arr) > 2 {
			_ = json.Unmarshal(arr[2], &msg.Message)
		}
		msg.Kind = "CLOSED"
	}
	return msg, nil
}
