package httpjson

import (
	"encoding/json"
	"net/http"
)

// WriteJSON 写入 JSON 响应
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	// 响应头已写出, 编码失败无法再报告
	_ = json.NewEncoder(w).Encode(data)
}
