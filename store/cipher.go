package store

// Cipher 机密值的加解密能力。
// IsEncrypted 的配置项在写入前经过 Encrypt，读取展开时经过 Decrypt。
// 默认实现为透传，真实算法由调用方注入。
type Cipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// PassthroughCipher 透传实现，不做任何变换
type PassthroughCipher struct{}

func (PassthroughCipher) Encrypt(plaintext string) (string, error) {
	return plaintext, nil
}

func (PassthroughCipher) Decrypt(ciphertext string) (string, error) {
	return ciphertext, nil
}
