package render

import "fmt"

// wrapInShell wraps a bare HTML fragment in the standard responsive
// envelope: centered container plus a footer unsubscribe link. The shell is
// byte-stable for identical inputs.
func wrapInShell(body, unsubscribeURL string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<style>
body { margin: 0; padding: 0; background-color: #f4f4f4; font-family: Arial, Helvetica, sans-serif; }
.container { max-width: 600px; margin: 0 auto; padding: 24px; background-color: #ffffff; }
.footer { padding: 16px 24px; text-align: center; font-size: 12px; color: #888888; }
.footer a { color: #888888; }
@media only screen and (max-width: 620px) { .container { width: 100%%; padding: 16px; } }
</style>
</head>
<body>
<div class="container">
%s
</div>
<div class="footer">
<a href="%s">Unsubscribe</a>
</div>
</body>
</html>`, body, unsubscribeURL)
}
