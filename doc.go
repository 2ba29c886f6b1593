// Package nostrsigner 实现 NIP-46 远程签名守护进程
//
// nostrsigner 守护私钥：密钥以口令加密的形式保存在本地磁盘，
// 远程应用通过 Nostr 中继上的 kind 24133 事件请求签名与加解密，
// 私钥永不离开本进程。
//
// 基本用法：
//
//	d, err := nostrsigner.New(
//		nostrsigner.WithRelays("wss://relay.damus.io"),
//		nostrsigner.WithDataDir("/var/lib/nostrsigner"),
//		nostrsigner.WithKey("home", nostrsigner.KeyOptions{}),
//	)
//	if err != nil {
//		log.Fatal(err)
//	}
//	if err := d.Start(context.Background()); err != nil {
//		log.Fatal(err)
//	}
//	defer d.Stop(context.Background())
//
// 远程应用接入有三条路径：
//   - bunker:// 连接串（含管理员共享秘密），见 Daemon.BunkerURL
//   - 一次性委托令牌，见 Daemon.CreateToken，兑换即物化授权
//   - 无秘密 connect，落到交互审批，见 Daemon.Pending / Approve / Deny
//
// 子系统（中继连接池、订阅管理器、协议处理器、委托存储、授权门）
// 由 go.uber.org/fx 装配，各自携带生命周期钩子。
package nostrsigner
