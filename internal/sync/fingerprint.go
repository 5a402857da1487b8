// Package sync 实现邮件的增量同步引擎：内容指纹、
// 过滤与对账，以及顶层的同步编排状态机。
package sync

import (
	"crypto/sha256"
	"encoding/hex"
)

// Fingerprint 对邮件的可变展示字段计算稳定的内容指纹，
// 用于在不逐字段比较的情况下检测远端变更。
//
// 三个字段按固定顺序直接拼接，不加分隔符：字段边界歧义
// （不同的 (subject, preview) 组合拼接后相同）被有意接受，
// 调用方不应依赖指纹区分这种情况。
func Fingerprint(subject, bodyPreview, fromAddress string) string {
	sum := sha256.Sum256([]byte(subject + bodyPreview + fromAddress))
	return hex.EncodeToString(sum[:])
}
